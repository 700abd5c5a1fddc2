package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_test", now)

	if err := VerifySignature(payload, header, "whsec_test", 0, now); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_a", now)

	err := VerifySignature(payload, header, "whsec_b", 0, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	now := time.Now()
	header := SignPayload([]byte(`{"amount":100}`), "whsec_test", now)

	err := VerifySignature([]byte(`{"amount":999}`), header, "whsec_test", 0, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, "whsec_test", signedAt)

	err := VerifySignature(payload, header, "whsec_test", 5*time.Minute, time.Now())
	if !errors.Is(err, ErrTimestampTooOld) {
		t.Fatalf("err = %v, want ErrTimestampTooOld", err)
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "v1=deadbeef", "t=123", "t=abc,v1=zz"} {
		if err := VerifySignature([]byte(`{}`), header, "whsec_test", 0, time.Now()); err == nil {
			t.Errorf("header %q: expected error", header)
		}
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"customer": "cus_9", "subscription": "sub_7"}}
	}`)
	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.ID != "evt_1" || evt.Type != "checkout.session.completed" {
		t.Fatalf("evt = %+v", evt)
	}
	if evt.CustomerID() != "cus_9" || evt.SubscriptionID() != "sub_7" {
		t.Fatalf("customer=%q subscription=%q", evt.CustomerID(), evt.SubscriptionID())
	}
}

func TestParseEventExpandedObjects(t *testing.T) {
	payload := []byte(`{
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_1", "customer": {"id": "cus_2"}, "status": "past_due"}}
	}`)
	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.CustomerID() != "cus_2" {
		t.Fatalf("customer = %q", evt.CustomerID())
	}
	if evt.Object.Get("status").String() != "past_due" {
		t.Fatalf("status = %q", evt.Object.Get("status").String())
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
	if _, err := ParseEvent([]byte(`{"id":"evt_1"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/sub_1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"id":"sub_1","customer":"cus_1","status":"active","current_period_end":1790812800}`))
	}))
	defer srv.Close()

	c := New(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	sub, err := c.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != "active" || sub.CustomerID != "cus_1" {
		t.Fatalf("sub = %+v", sub)
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1790812800 {
		t.Fatalf("period end = %v", sub.CurrentPeriodEnd)
	}
}

func TestGetSubscriptionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No such subscription"}}`))
	}))
	defer srv.Close()

	c := New(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	_, err := c.GetSubscription(context.Background(), "sub_missing")
	if err == nil || !strings.Contains(err.Error(), "No such subscription") {
		t.Fatalf("err = %v", err)
	}
}
