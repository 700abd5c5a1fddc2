// Package copy generates marketing copy and social content.
package copy

import (
	"context"
	"fmt"
	"strings"

	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// TextGenerator produces model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateConversation(ctx context.Context, system, user string) (string, error)
	GenerateConversationSampled(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Quick captions are sampled warmer than the default so repeated asks vary.
const captionTemperature = 0.7

// Service generates captions and multi-variant social content.
type Service struct {
	ai     TextGenerator
	voices storage.VoiceStore
	log    *logger.Logger
}

// New constructs a copy service. voices may be nil; social generation then
// runs without a brand voice overlay.
func New(ai TextGenerator, voices storage.VoiceStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("copy")
	}
	return &Service{ai: ai, voices: voices, log: log}
}

// GenerateRequest is a quick single-caption request.
type GenerateRequest struct {
	Request  string `json:"request"`
	Platform string `json:"platform"`
	Style    string `json:"style"`
}

// Generate produces one short caption.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Request) == "" {
		return "", fmt.Errorf(`please include a non-empty "request" string`)
	}
	if req.Platform == "" {
		req.Platform = "Instagram"
	}
	if req.Style == "" {
		req.Style = "Friendly"
	}

	if s.ai == nil {
		return "", fmt.Errorf("missing OPENAI_API_KEY")
	}

	system := fmt.Sprintf(`You are a social media assistant. Platform: %s. Tone: %s.
Be short, punchy, 1–2 emojis, up to 3 relevant hashtags.`, req.Platform, req.Style)

	out, err := s.ai.GenerateConversationSampled(ctx, system, req.Request, captionTemperature)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "No response."
	}
	return out, nil
}

// SocialRequest describes a three-variant social content request.
type SocialRequest struct {
	Prompt   string `json:"prompt"`
	Mode     string `json:"mode"`
	Tone     string `json:"tone"`
	Platform string `json:"platform"`
	City     string `json:"city"`
	Length   string `json:"length"`
	Brand    string `json:"brand"`
	Cuisine  string `json:"cuisine"`
	Special  string `json:"special"`
	Language string `json:"language"`
}

func (r *SocialRequest) applyDefaults() {
	if r.Mode == "" {
		r.Mode = "both"
	}
	if r.Tone == "" {
		r.Tone = "Friendly"
	}
	if r.Platform == "" {
		r.Platform = "Instagram"
	}
	if r.City == "" {
		r.City = "San Diego"
	}
	if r.Length == "" {
		r.Length = "medium"
	}
	if r.Language == "" {
		r.Language = "English"
	}
}

var lengthHints = map[string]string{
	"short":  "Keep captions <= 80 words.",
	"medium": "Keep captions <= 140 words.",
	"long":   "Keep captions <= 220 words.",
}

// GenerateSocial produces three content variants. When userID is non-empty
// the user's saved brand voice style guide is folded into the prompt;
// lookup failures fall back to a neutral voice.
func (s *Service) GenerateSocial(ctx context.Context, userID string, req SocialRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("please describe what you want")
	}
	if s.ai == nil {
		return "", fmt.Errorf("missing OPENAI_API_KEY")
	}
	req.applyDefaults()

	styleGuide := ""
	if s.voices != nil && userID != "" {
		if p, err := s.voices.GetVoiceProfile(ctx, userID); err == nil {
			styleGuide = p.StyleGuide
		}
	}

	system := s.socialSystemPrompt(req, styleGuide)
	user := socialUserPrompt(req)

	out, err := s.ai.GenerateConversation(ctx, system, user)
	if err != nil {
		return "", err
	}
	s.log.WithField("platform", req.Platform).WithField("mode", req.Mode).
		Debug("social content generated")
	return out, nil
}

func (s *Service) socialSystemPrompt(req SocialRequest, styleGuide string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert social media marketer for small restaurants and coffee shops.
Write the entire output in %s. If input language differs, prefer %s.
- Write %s content with a %s tone.
- Always make it brand-safe and conversion-minded.
- Localize hashtags to %q (5–9 per variant, mix broad + local).
- Use clean formatting, no markdown headings except "### Variant 1/2/3".
- When giving Reel ideas, include: Hook (<= 8 words), Shot list (3–5 quick cuts).
- %s`, req.Language, req.Language, req.Platform, req.Tone, req.City, lengthHints[req.Length])
	if styleGuide != "" {
		fmt.Fprintf(&b, "\n\n=== BRAND VOICE STYLE GUIDE ===\n%s\n=== END STYLE GUIDE ===", styleGuide)
	}
	return b.String()
}

func socialUserPrompt(req SocialRequest) string {
	orNA := func(v string) string {
		if v == "" {
			return "N/A"
		}
		return v
	}
	return strings.TrimSpace(fmt.Sprintf(`
Business: %s
Cuisine: %s
Special/Promo: %s
Request: %s

Mode: %s (one of captions | reels | both)
Output exactly 3 variants. For each:
- Start with "### Variant X"
- If mode is "captions" -> only caption + hashtags.
- If mode is "reels" -> Hook, Shot list, and a short caption line with hashtags.
- If mode is "both" -> Hook, Shot list, AND a caption.
- Include a natural CTA (visit, order, DM, link in bio).
- Never exceed Instagram's 2,200 character limit.`,
		orNA(req.Brand), orNA(req.Cuisine), orNA(req.Special), req.Prompt, req.Mode))
}
