package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestFixedWindowLimiterNinthRequestRejected(t *testing.T) {
	l := NewFixedWindowLimiter(10*time.Second, 8)

	for i := 0; i < 8; i++ {
		if !l.Allow("1.2.3.4:/api/generate") {
			t.Fatalf("request %d rejected inside budget", i+1)
		}
	}
	if l.Allow("1.2.3.4:/api/generate") {
		t.Fatal("ninth request allowed")
	}
}

func TestFixedWindowLimiterResetsAfterWindow(t *testing.T) {
	l := NewFixedWindowLimiter(10*time.Second, 8)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 9; i++ {
		l.Allow("k")
	}
	if l.Allow("k") {
		t.Fatal("over-budget request allowed")
	}

	now = now.Add(11 * time.Second)
	if !l.Allow("k") {
		t.Fatal("request after expired window rejected")
	}
}

func TestFixedWindowLimiterKeysAreIndependent(t *testing.T) {
	l := NewFixedWindowLimiter(10*time.Second, 1)

	if !l.Allow("a") {
		t.Fatal("first key rejected")
	}
	if l.Allow("a") {
		t.Fatal("second hit on same key allowed")
	}
	if !l.Allow("b") {
		t.Fatal("other key rejected")
	}
}

func TestRateLimitMiddleware429(t *testing.T) {
	handler := RateLimit(NewFixedWindowLimiter(10*time.Second, 1))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Too many requests. Please wait a few seconds.") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRateLimitKeyedByPath(t *testing.T) {
	handler := RateLimit(NewFixedWindowLimiter(10*time.Second, 1))

	mux := http.NewServeMux()
	mux.Handle("/api/generate", handler(okHandler()))
	mux.Handle("/api/sales", handler(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	other := httptest.NewRequest(http.MethodPost, "/api/sales", nil)
	other.RemoteAddr = "9.9.9.9:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("different path throttled, status = %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 10.0.0.1 , 172.16.0.1")
	if ip := ClientIP(req); ip != "10.0.0.1" {
		t.Fatalf("forwarded ip = %q", ip)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4444"
	if ip := ClientIP(req); ip != "192.168.1.5" {
		t.Fatalf("remote ip = %q", ip)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ""
	if ip := ClientIP(req); ip != "local" {
		t.Fatalf("fallback ip = %q", ip)
	}
}
