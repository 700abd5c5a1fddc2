package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestAuthURL(t *testing.T) {
	c := New(Config{
		ClientID:    "client-1",
		RedirectURI: "https://app.example/api/google/oauth/callback",
	})
	raw := c.AuthURL("state-token")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-1" || q.Get("state") != "state-token" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Fatalf("offline consent params missing: %v", q)
	}
	if !strings.Contains(q.Get("scope"), "business.manage") {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3599}`))
	}))
	defer srv.Close()

	c := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURI: "https://cb", TokenURL: srv.URL})
	tok, err := c.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Fatalf("tok = %+v", tok)
	}
	if gotForm.Get("grant_type") != "authorization_code" || gotForm.Get("code") != "auth-code" {
		t.Fatalf("form = %v", gotForm)
	}
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		w.Write([]byte(`{"access_token":"fresh"}`))
	}))
	defer srv.Close()

	c := New(Config{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL})
	tok, err := c.RefreshToken(context.Background(), "rt")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Fatalf("tok = %+v", tok)
	}
}

func TestExchangeCodeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := New(Config{TokenURL: srv.URL})
	if _, err := c.ExchangeCode(context.Background(), "bad"); err == nil {
		t.Fatal("expected error")
	}
}

func TestListReviews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/accounts/1/locations/2/reviews") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("orderBy") != "updateTime desc" {
			t.Errorf("orderBy = %q", r.URL.Query().Get("orderBy"))
		}
		if r.Header.Get("Authorization") != "Bearer at" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"reviews":[
			{"reviewId":"rv1","starRating":"FIVE","comment":"Great","reviewer":{"displayName":"Dana"},"updateTime":"2026-08-20T10:00:00Z"},
			{"reviewId":"rv2","starRating":"TWO","updateTime":"2026-08-19T10:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{ReviewsBaseURL: srv.URL})
	reviews, err := c.ListReviews(context.Background(), "at", "accounts/1/locations/2")
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Reviewer.DisplayName != "Dana" {
		t.Fatalf("reviews = %+v", reviews)
	}
}

func TestListAccountsAndLocations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/accounts":
			w.Write([]byte(`{"accounts":[{"name":"accounts/1","accountName":"Blue Door Group"}]}`))
		case strings.HasSuffix(r.URL.Path, "/locations"):
			if r.URL.Query().Get("readMask") != "name,title" {
				t.Errorf("readMask = %q", r.URL.Query().Get("readMask"))
			}
			w.Write([]byte(`{"locations":[{"name":"locations/2","title":"Blue Door Cafe"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(Config{AccountsBaseURL: srv.URL, LocationsBaseURL: srv.URL})
	accounts, err := c.ListAccounts(context.Background(), "at")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Name != "accounts/1" {
		t.Fatalf("accounts = %+v", accounts)
	}
	locations, err := c.ListLocations(context.Background(), "at", "accounts/1")
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(locations) != 1 || locations[0].Title != "Blue Door Cafe" {
		t.Fatalf("locations = %+v", locations)
	}
}

func TestStarToNumber(t *testing.T) {
	cases := map[string]*int{
		"ONE": intPtr(1), "TWO": intPtr(2), "THREE": intPtr(3),
		"FOUR": intPtr(4), "FIVE": intPtr(5),
		"STAR_RATING_UNSPECIFIED": nil, "": nil,
	}
	for star, want := range cases {
		got := StarToNumber(star)
		switch {
		case want == nil && got != nil:
			t.Errorf("StarToNumber(%q) = %d, want nil", star, *got)
		case want != nil && (got == nil || *got != *want):
			t.Errorf("StarToNumber(%q) = %v, want %d", star, got, *want)
		}
	}
}

func intPtr(n int) *int { return &n }
