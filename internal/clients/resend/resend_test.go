package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendSkipsWithoutAPIKey(t *testing.T) {
	c := New(Config{From: "TurnTable AI <alerts@example.com>"})
	skipped, err := c.Send(context.Background(), Message{To: "owner@cafe.test", Subject: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !skipped {
		t.Fatal("expected skip without api key")
	}
}

func TestSendPostsEmail(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", From: "TurnTable AI <alerts@example.com>", BaseURL: srv.URL})
	skipped, err := c.Send(context.Background(), Message{
		To: "owner@cafe.test", Subject: "New review", HTML: "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if skipped {
		t.Fatal("should not skip with api key")
	}
	if gotAuth != "Bearer re_test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["from"] != "TurnTable AI <alerts@example.com>" || gotBody["subject"] != "New review" {
		t.Errorf("body = %v", gotBody)
	}
	to, _ := gotBody["to"].([]any)
	if len(to) != 1 || to[0] != "owner@cafe.test" {
		t.Errorf("to = %v", gotBody["to"])
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "re_test", BaseURL: srv.URL})
	_, err := c.Send(context.Background(), Message{To: "x@y.test"})
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("err = %v", err)
	}
}

func TestReviewAlertSubject(t *testing.T) {
	four := 4
	a := ReviewAlert{LocationTitle: "Blue Door Cafe", Rating: &four}
	if got := a.Subject(); got != "New review (4★) for Blue Door Cafe" {
		t.Fatalf("subject = %q", got)
	}
	a = ReviewAlert{}
	if got := a.Subject(); got != "New review for your business" {
		t.Fatalf("subject = %q", got)
	}
}

func TestReviewAlertHTMLEscapes(t *testing.T) {
	two := 2
	a := ReviewAlert{
		LocationTitle: "Joe's <Diner>",
		Author:        "<script>alert(1)</script>",
		Rating:        &two,
		Text:          `Cold & "stale"`,
		DraftReply:    "We're sorry <3",
		AppBaseURL:    "https://app.example",
	}
	out := a.HTML()
	if strings.Contains(out, "<script>") {
		t.Fatal("author not escaped")
	}
	for _, want := range []string{"Joe&#39;s &lt;Diner&gt;", "Cold &amp; &#34;stale&#34;", "★★☆☆☆", "https://app.example/reviews"} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q in %q", want, out)
		}
	}
}
