package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/domain/voice"
	"github.com/turntable-ai/turntable/internal/app/storage/memory"
)

type fakeAI struct {
	prompt string
	out    string
	err    error
	calls  int
}

func (f *fakeAI) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.out, f.err
}

func newService(ai *fakeAI) (*Service, *memory.Store) {
	store := memory.New()
	return New(ai, store, store, store, nil), store
}

func TestDraftReplyRequiresText(t *testing.T) {
	ai := &fakeAI{}
	s, _ := newService(ai)
	if _, err := s.DraftReply(context.Background(), "u1", ReplyRequest{ReviewText: "  "}); err == nil {
		t.Fatal("expected validation error")
	}
	if ai.calls != 0 {
		t.Fatal("AI must not be called on invalid input")
	}
}

func TestDraftReplyPromptContents(t *testing.T) {
	two := 2
	ai := &fakeAI{out: "We're sorry about the wait — please DM us."}
	s, store := newService(ai)
	store.UpsertVoiceProfile(context.Background(), voice.Profile{
		UserID: "u1", StyleGuide: "- Always sign off with 'See you soon'",
	})

	out, err := s.DraftReply(context.Background(), "u1", ReplyRequest{
		ReviewText:    "Waited 30 minutes for a latte.",
		Rating:        &two,
		Platform:      "Google",
		Business:      "Blue Door Cafe",
		City:          "Portland",
		Length:        "short",
		VariantFlavor: "more_professional",
	})
	if err != nil {
		t.Fatalf("DraftReply: %v", err)
	}
	if out != "We're sorry about the wait — please DM us." {
		t.Fatalf("out = %q", out)
	}
	for _, want := range []string{
		`"Blue Door Cafe"`,
		"in Portland",
		"Aim for 1–2 concise sentences.",
		"Do not admit fault or liability.",
		"more formal, polished tone",
		"Always sign off with 'See you soon'",
		"rating: 2, platform: Google",
		"Waited 30 minutes for a latte.",
	} {
		if !strings.Contains(ai.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDraftReplyDisabledPolicies(t *testing.T) {
	off := false
	ai := &fakeAI{out: "Thanks!"}
	s, _ := newService(ai)
	_, err := s.DraftReply(context.Background(), "", ReplyRequest{
		ReviewText:           "Great spot",
		PolicyApologize:      &off,
		PolicyNoAdmission:    &off,
		PolicyOfferRemedyLow: &off,
	})
	if err != nil {
		t.Fatalf("DraftReply: %v", err)
	}
	for _, banned := range []string{"Apologize politely", "admit fault", "concrete remedy"} {
		if strings.Contains(ai.prompt, banned) {
			t.Errorf("prompt should not contain %q", banned)
		}
	}
	if !strings.Contains(ai.prompt, "Stay brand-safe and friendly.") {
		t.Error("base guardrail missing")
	}
}

func TestDraftReplyFallbackOnEmptyOutput(t *testing.T) {
	ai := &fakeAI{out: "   "}
	s, _ := newService(ai)
	out, err := s.DraftReply(context.Background(), "", ReplyRequest{ReviewText: "ok"})
	if err != nil {
		t.Fatalf("DraftReply: %v", err)
	}
	if out != FallbackReply {
		t.Fatalf("out = %q", out)
	}
}

func TestDraftReplyPropagatesAIError(t *testing.T) {
	ai := &fakeAI{err: errors.New("rate limited")}
	s, _ := newService(ai)
	if _, err := s.DraftReply(context.Background(), "", ReplyRequest{ReviewText: "ok"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDraftReplyUnknownVariantFallsBackToBase(t *testing.T) {
	ai := &fakeAI{out: "Thanks!"}
	s, _ := newService(ai)
	if _, err := s.DraftReply(context.Background(), "", ReplyRequest{
		ReviewText: "ok", VariantFlavor: "sassy",
	}); err != nil {
		t.Fatalf("DraftReply: %v", err)
	}
	if !strings.Contains(ai.prompt, "easy to paste as a reply") {
		t.Fatalf("prompt = %q", ai.prompt)
	}
}

func TestAnalyzeParsesModelJSON(t *testing.T) {
	ai := &fakeAI{out: `{
		"detectedRating": "4",
		"toneLabel": " Happy ",
		"lengthSuggestion": "short",
		"sentimentSummary": "very positive",
		"issues": ["slow service", "", 42],
		"languageName": "English"
	}`}
	s, _ := newService(ai)
	a, err := s.Analyze(context.Background(), "Loved it, service was a bit slow")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.DetectedRating == nil || *a.DetectedRating != 4 {
		t.Fatalf("rating = %v", a.DetectedRating)
	}
	if a.ToneLabel != "Happy" || a.LengthSuggestion != "short" {
		t.Fatalf("analysis = %+v", a)
	}
	if len(a.Issues) != 1 || a.Issues[0] != "slow service" {
		t.Fatalf("issues = %v", a.Issues)
	}
}

func TestAnalyzeDegradesOnGarbageOutput(t *testing.T) {
	ai := &fakeAI{out: "Sorry, I cannot produce JSON today."}
	s, _ := newService(ai)
	a, err := s.Analyze(context.Background(), "meh")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.DetectedRating != nil || a.ToneLabel != "" || len(a.Issues) != 0 {
		t.Fatalf("analysis = %+v", a)
	}
}

func TestAnalyzeClampsRating(t *testing.T) {
	for _, out := range []string{`{"detectedRating": 9}`, `{"detectedRating": 0}`, `{"detectedRating": null}`} {
		ai := &fakeAI{out: out}
		s, _ := newService(ai)
		a, err := s.Analyze(context.Background(), "meh")
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if a.DetectedRating != nil {
			t.Errorf("output %q: rating = %d, want nil", out, *a.DetectedRating)
		}
	}
}

func TestInboxClampsLimit(t *testing.T) {
	s, store := newService(&fakeAI{})
	var rows []review.Review
	for i := 0; i < 60; i++ {
		rows = append(rows, review.Review{
			UserID:           "u1",
			Provider:         "google",
			ProviderReviewID: fmt.Sprintf("rv-%03d", i),
			CreateTime:       fmt.Sprintf("2026-08-01T00:00:%02dZ", i%60),
		})
	}
	if _, err := store.UpsertReviews(context.Background(), rows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, err := s.Inbox(context.Background(), "u1", "", "", 500)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(items) != 50 {
		t.Fatalf("len = %d, want clamp to 50", len(items))
	}

	items, err = s.Inbox(context.Background(), "u1", "", "", 0)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("len = %d, want default 20", len(items))
	}
}

func TestSaveReplyDefaultsAndPostedAt(t *testing.T) {
	s, _ := newService(&fakeAI{})

	rep, err := s.SaveReply(context.Background(), "u1", SaveRequest{
		ReviewID: "r1", Reply: "Thanks for coming in!",
	})
	if err != nil {
		t.Fatalf("SaveReply: %v", err)
	}
	if rep.Status != review.StatusDrafted || rep.PostedAt != nil {
		t.Fatalf("rep = %+v", rep)
	}
	if rep.DraftText != rep.FinalText {
		t.Fatal("draft and final text should match on save")
	}

	posted, err := s.SaveReply(context.Background(), "u1", SaveRequest{
		ReviewID: "r1", Reply: "Posted it", Status: "posted",
	})
	if err != nil {
		t.Fatalf("SaveReply: %v", err)
	}
	if posted.PostedAt == nil {
		t.Fatal("posted status should stamp posted_at")
	}
}

func TestSaveReplyRejectsInvalidStatus(t *testing.T) {
	s, _ := newService(&fakeAI{})
	if _, err := s.SaveReply(context.Background(), "u1", SaveRequest{
		ReviewID: "r1", Reply: "x", Status: "archived",
	}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
