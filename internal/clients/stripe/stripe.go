// Package stripe verifies webhook signatures and reads the handful of
// Stripe objects the billing flow needs.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTolerance bounds the webhook timestamp skew.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature is returned when no candidate signature matches.
	ErrInvalidSignature = errors.New("stripe: signature verification failed")
	// ErrTimestampTooOld is returned when the signed timestamp is outside
	// the tolerance window.
	ErrTimestampTooOld = errors.New("stripe: webhook timestamp outside tolerance")
)

// VerifySignature checks a Stripe-Signature header (t=...,v1=...) against
// the raw payload using the webhook signing secret.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("stripe: bad signature timestamp: %w", err)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return ErrTimestampTooOld
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload builds a Stripe-Signature header value for the payload.
// Used by tests and local tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Event is a decoded webhook event. Object holds the raw event.data.object
// JSON for field access.
type Event struct {
	ID     string
	Type   string
	Object gjson.Result
}

// ParseEvent decodes the event envelope.
func ParseEvent(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, errors.New("stripe: invalid event payload")
	}
	root := gjson.ParseBytes(payload)
	evt := Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("type").String(),
		Object: root.Get("data.object"),
	}
	if evt.Type == "" {
		return Event{}, errors.New("stripe: event has no type")
	}
	return evt, nil
}

// CustomerID reads the customer reference from the event object, which may
// be a string id or an expanded object.
func (e Event) CustomerID() string {
	c := e.Object.Get("customer")
	if c.Type == gjson.String {
		return c.String()
	}
	return c.Get("id").String()
}

// SubscriptionID reads the subscription reference, string or expanded.
func (e Event) SubscriptionID() string {
	s := e.Object.Get("subscription")
	if s.Type == gjson.String {
		return s.String()
	}
	return s.Get("id").String()
}

// Subscription is the slice of a Stripe subscription the billing flow uses.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd *time.Time
}

// Config holds API client configuration.
type Config struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the Stripe API.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{secretKey: cfg.SecretKey, baseURL: baseURL, httpClient: httpClient}
}

// GetSubscription retrieves a subscription by id.
func (c *Client) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	if c.secretKey == "" {
		return Subscription{}, errors.New("stripe: secret key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/subscriptions/"+id, nil)
	if err != nil {
		return Subscription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Subscription{}, fmt.Errorf("stripe: %s (status %d)", msg, resp.StatusCode)
	}

	root := gjson.ParseBytes(raw)
	sub := Subscription{
		ID:         root.Get("id").String(),
		Status:     root.Get("status").String(),
		CustomerID: root.Get("customer").String(),
	}
	if end := root.Get("current_period_end").Int(); end > 0 {
		t := time.Unix(end, 0).UTC()
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}
