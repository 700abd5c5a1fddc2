// Package voicesvc builds and stores brand voice style guides from writing
// samples.
package voicesvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/turntable-ai/turntable/internal/app/domain/voice"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// MinSamples is the minimum number of writing samples per profile.
const MinSamples = 3

// ErrTooFewSamples rejects profile generation with fewer than MinSamples
// non-empty samples.
var ErrTooFewSamples = fmt.Errorf("please provide at least %d samples", MinSamples)

// TextGenerator produces model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service manages brand voice profiles.
type Service struct {
	ai    TextGenerator
	store storage.VoiceStore
	log   *logger.Logger
}

// New constructs a voice service.
func New(ai TextGenerator, store storage.VoiceStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("voice")
	}
	return &Service{ai: ai, store: store, log: log}
}

// Get returns the user's profile, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (voice.Profile, error) {
	return s.store.GetVoiceProfile(ctx, userID)
}

// Generate builds a style guide from the samples and saves the profile,
// replacing any previous one.
func (s *Service) Generate(ctx context.Context, userID string, samples []string) (voice.Profile, error) {
	cleaned := make([]string, 0, len(samples))
	for _, sample := range samples {
		if trimmed := strings.TrimSpace(sample); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) < MinSamples {
		return voice.Profile{}, ErrTooFewSamples
	}
	if s.ai == nil {
		return voice.Profile{}, fmt.Errorf("missing OPENAI_API_KEY")
	}

	styleGuide, err := s.ai.Generate(ctx, buildStylePrompt(cleaned))
	if err != nil {
		return voice.Profile{}, err
	}
	styleGuide = strings.TrimSpace(styleGuide)
	if styleGuide == "" {
		styleGuide = "No result."
	}

	profile, err := s.store.UpsertVoiceProfile(ctx, voice.Profile{
		UserID:     userID,
		Samples:    cleaned,
		StyleGuide: styleGuide,
	})
	if err != nil {
		return voice.Profile{}, err
	}
	s.log.WithField("user_id", userID).WithField("samples", len(cleaned)).
		Info("voice profile generated")
	return profile, nil
}

// Delete removes the user's profile. Deleting a missing profile is not an
// error.
func (s *Service) Delete(ctx context.Context, userID string) error {
	return s.store.DeleteVoiceProfile(ctx, userID)
}

func buildStylePrompt(samples []string) string {
	var b strings.Builder
	b.WriteString(`You are a brand voice analyst.

Given REAL social captions and/or review replies for a small, community-rooted café,
write a concise, reusable **Brand Voice Style Guide** as short bullet points.

Requirements:
- 8–12 bullets. Be specific and actionable.
- Cover tone, sentence length, emojis/hashtags policy, sensory language, inclusivity,
  do/don’t phrasing, and examples of signature phrases.
- Keep it neutral and brand-safe (no slang that can alienate).

`)
	for i, sample := range samples {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sample %d:\n%s", i+1, sample)
	}
	return b.String()
}
