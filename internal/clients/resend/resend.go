// Package resend sends transactional email through the Resend API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turntable-ai/turntable/pkg/logger"
)

const defaultBaseURL = "https://api.resend.com"

// Config holds client configuration.
type Config struct {
	APIKey string
	// From is the sender, e.g. `TurnTable AI <alerts@example.com>`.
	From       string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client sends email via Resend. With no API key configured it logs the
// message and reports success, so local development works without email.
type Client struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("resend")
	}
	return &Client{
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
	}
}

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Send delivers the message. Skipped is true when no API key is configured
// and the message was only logged.
func (c *Client) Send(ctx context.Context, msg Message) (skipped bool, err error) {
	if c.apiKey == "" {
		c.log.WithField("to", msg.To).WithField("subject", msg.Subject).
			Info("email skipped: no api key configured")
		return true, nil
	}

	payload, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("resend: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return false, nil
}

// ReviewAlert carries the fields rendered into a new-review notification.
type ReviewAlert struct {
	LocationTitle string
	Author        string
	Rating        *int
	Text          string
	DraftReply    string
	AppBaseURL    string
}

// Subject builds the notification subject line.
func (a ReviewAlert) Subject() string {
	stars := ""
	if a.Rating != nil {
		stars = fmt.Sprintf(" (%d★)", *a.Rating)
	}
	title := a.LocationTitle
	if title == "" {
		title = "your business"
	}
	return fmt.Sprintf("New review%s for %s", stars, title)
}

// HTML renders the notification body. All user-supplied fields are escaped.
func (a ReviewAlert) HTML() string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:sans-serif;max-width:560px">`)
	b.WriteString(`<h2 style="margin-bottom:4px">New review`)
	if a.LocationTitle != "" {
		b.WriteString(" for " + html.EscapeString(a.LocationTitle))
	}
	b.WriteString(`</h2>`)
	if a.Rating != nil {
		r := *a.Rating
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		b.WriteString(fmt.Sprintf(`<p style="font-size:18px">%s</p>`,
			strings.Repeat("★", r)+strings.Repeat("☆", 5-r)))
	}
	if a.Author != "" {
		b.WriteString(`<p><strong>` + html.EscapeString(a.Author) + `</strong></p>`)
	}
	if a.Text != "" {
		b.WriteString(`<blockquote style="border-left:3px solid #ddd;margin:0;padding-left:12px">` +
			html.EscapeString(a.Text) + `</blockquote>`)
	}
	if a.DraftReply != "" {
		b.WriteString(`<h3>Suggested reply</h3><p>` + html.EscapeString(a.DraftReply) + `</p>`)
	}
	if a.AppBaseURL != "" {
		b.WriteString(`<p><a href="` + html.EscapeString(a.AppBaseURL) +
			`/reviews">Open your review inbox</a></p>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}
