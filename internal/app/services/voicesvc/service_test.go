package voicesvc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/app/storage/memory"
)

type fakeAI struct {
	prompt string
	out    string
	err    error
}

func (f *fakeAI) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func TestGenerateRequiresThreeSamples(t *testing.T) {
	svc := New(&fakeAI{}, memory.New(), nil)

	_, err := svc.Generate(context.Background(), "u1", []string{"one", "  ", "two"})
	if err == nil || !strings.Contains(err.Error(), "at least 3 samples") {
		t.Fatalf("expected sample count error, got %v", err)
	}
}

func TestGenerateBuildsPromptAndSaves(t *testing.T) {
	ai := &fakeAI{out: "- Warm, neighborly tone\n- Short sentences"}
	store := memory.New()
	svc := New(ai, store, nil)

	samples := []string{"Fresh scones today!", " Cold brew is back. ", "Thanks for visiting us"}
	profile, err := svc.Generate(context.Background(), "u1", samples)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !strings.Contains(ai.prompt, "brand voice analyst") {
		t.Fatalf("prompt missing role: %q", ai.prompt)
	}
	if !strings.Contains(ai.prompt, "Sample 2:\nCold brew is back.") {
		t.Fatalf("prompt missing trimmed sample: %q", ai.prompt)
	}
	if profile.StyleGuide != ai.out {
		t.Fatalf("style guide = %q", profile.StyleGuide)
	}

	saved, err := store.GetVoiceProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get saved profile: %v", err)
	}
	if len(saved.Samples) != 3 || saved.Samples[1] != "Cold brew is back." {
		t.Fatalf("saved samples = %v", saved.Samples)
	}
}

func TestGenerateEmptyOutputFallsBack(t *testing.T) {
	svc := New(&fakeAI{out: "   "}, memory.New(), nil)

	profile, err := svc.Generate(context.Background(), "u1", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if profile.StyleGuide != "No result." {
		t.Fatalf("style guide = %q", profile.StyleGuide)
	}
}

func TestGeneratePropagatesModelError(t *testing.T) {
	svc := New(&fakeAI{err: errors.New("boom")}, memory.New(), nil)

	if _, err := svc.Generate(context.Background(), "u1", []string{"a", "b", "c"}); err == nil {
		t.Fatal("expected model error")
	}
}

func TestGetMissingProfile(t *testing.T) {
	svc := New(&fakeAI{}, memory.New(), nil)

	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(&fakeAI{out: "guide"}, store, nil)

	if _, err := svc.Generate(context.Background(), "u1", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := svc.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
