// Package reviews drafts AI replies to customer reviews, analyzes review
// text, and manages the review inbox and saved replies.
package reviews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// FallbackReply is returned when the model produces no usable text.
const FallbackReply = "Thanks so much for your feedback — we appreciate you!"

// TextGenerator produces model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service handles review replies and analysis.
type Service struct {
	ai      TextGenerator
	reviews storage.ReviewStore
	replies storage.ReplyStore
	voices  storage.VoiceStore
	log     *logger.Logger
}

// New constructs a reviews service. voices may be nil; drafting then runs
// without a brand voice overlay.
func New(ai TextGenerator, reviews storage.ReviewStore, replies storage.ReplyStore, voices storage.VoiceStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reviews")
	}
	return &Service{ai: ai, reviews: reviews, replies: replies, voices: voices, log: log}
}

// VariantFlavor selects a reply styling variant.
type VariantFlavor string

const (
	VariantBase             VariantFlavor = "base"
	VariantWarmer           VariantFlavor = "warmer"
	VariantShorter          VariantFlavor = "shorter"
	VariantMoreProfessional VariantFlavor = "more_professional"
)

func normalizeVariant(v string) VariantFlavor {
	switch VariantFlavor(v) {
	case VariantWarmer, VariantShorter, VariantMoreProfessional:
		return VariantFlavor(v)
	}
	return VariantBase
}

// ReplyRequest describes a reply draft request. Policy fields default to
// enabled when nil.
type ReplyRequest struct {
	ReviewText           string `json:"reviewText"`
	Rating               *int   `json:"rating"`
	Platform             string `json:"platform"`
	Tone                 string `json:"tone"`
	Business             string `json:"business"`
	City                 string `json:"city"`
	Length               string `json:"length"`
	PolicyApologize      *bool  `json:"policy_apologize"`
	PolicyNoAdmission    *bool  `json:"policy_no_admission"`
	PolicyOfferRemedyLow *bool  `json:"policy_offer_remedy_if_low"`
	Language             string `json:"language"`
	VariantFlavor        string `json:"variantFlavor"`
}

func boolDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// DraftReply generates a reply draft for the review. userID may be empty;
// a saved style guide is used when it resolves.
func (s *Service) DraftReply(ctx context.Context, userID string, req ReplyRequest) (string, error) {
	reviewText := strings.TrimSpace(req.ReviewText)
	if reviewText == "" {
		return "", fmt.Errorf("please provide the review text")
	}
	req.ReviewText = reviewText

	if s.ai == nil {
		return "", fmt.Errorf("missing OPENAI_API_KEY")
	}

	styleGuide := ""
	if s.voices != nil && userID != "" {
		if p, err := s.voices.GetVoiceProfile(ctx, userID); err == nil {
			styleGuide = p.StyleGuide
		}
	}

	prompt := buildReplyPrompt(req, styleGuide)
	out, err := s.ai.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = FallbackReply
	}
	return out, nil
}

func buildReplyPrompt(req ReplyRequest, styleGuide string) string {
	length := req.Length
	if length == "" {
		length = "medium"
	}
	var lenHint string
	switch length {
	case "short":
		lenHint = "Aim for 1–2 concise sentences."
	case "long":
		lenHint = "You may use 3–5 sentences if helpful."
	default:
		lenHint = "Aim for 2–3 sentences."
	}

	var guardrails []string
	if boolDefault(req.PolicyApologize, true) {
		guardrails = append(guardrails, "Apologize politely if needed.")
	}
	if boolDefault(req.PolicyNoAdmission, true) {
		guardrails = append(guardrails, "Do not admit fault or liability.")
	}
	if boolDefault(req.PolicyOfferRemedyLow, true) {
		guardrails = append(guardrails, "If the rating is low or there is a clear issue, offer a concrete remedy or invite them to DM/email to make it right.")
	}
	guardrails = append(guardrails, "Stay brand-safe and friendly. No sarcasm. Avoid sounding defensive.")

	var variantInstructions string
	switch normalizeVariant(req.VariantFlavor) {
	case VariantWarmer:
		variantInstructions = "Lean extra warm and human. Show sincere appreciation and empathy while staying concise."
	case VariantShorter:
		variantInstructions = "Keep the reply very short and direct (1–2 concise sentences). Do not repeat the entire complaint."
	case VariantMoreProfessional:
		variantInstructions = "Use a more formal, polished tone suitable for a fine-dining or corporate brand."
	default:
		variantInstructions = "Keep it clear, human, and easy to paste as a reply."
	}

	var b strings.Builder
	b.WriteString("You are a professional community manager for a local café")
	if req.Business != "" {
		fmt.Fprintf(&b, " called %q", req.Business)
	}
	if req.City != "" {
		fmt.Fprintf(&b, " in %s", req.City)
	}
	platformOr := func(def string) string {
		if req.Platform != "" {
			return req.Platform
		}
		return def
	}
	fmt.Fprintf(&b, ". You will write a polished, brand-safe reply to a customer %s.\n\n", platformOr("review"))

	tone := req.Tone
	if tone == "" {
		tone = "friendly, appreciative"
	}
	language := req.Language
	if language == "" {
		language = "English"
	}
	fmt.Fprintf(&b, "Constraints:\n- %s\n- Reply in %s and a %s tone.\n- %s\n- %s\n",
		lenHint, language, tone, strings.Join(guardrails, " "), variantInstructions)
	if styleGuide != "" {
		fmt.Fprintf(&b, "\nBrand Voice Style Guide (follow closely):\n%s\n", styleGuide)
	}

	rating := "n/a"
	if req.Rating != nil {
		rating = fmt.Sprintf("%d", *req.Rating)
	}
	fmt.Fprintf(&b, "\nCustomer review (rating: %s, platform: %s):\n\"\"\"\n%s\n\"\"\"\n\nNow write the reply only (no preface, no quotes).",
		rating, platformOr("n/a"), req.ReviewText)
	return b.String()
}

// Analysis is the structured result of review analysis. Fields the model
// could not determine are zero-valued.
type Analysis struct {
	DetectedRating   *int     `json:"detectedRating"`
	ToneLabel        string   `json:"toneLabel,omitempty"`
	LengthSuggestion string   `json:"lengthSuggestion,omitempty"`
	SentimentSummary string   `json:"sentimentSummary,omitempty"`
	Issues           []string `json:"issues"`
	LanguageName     string   `json:"languageName,omitempty"`
}

const analyzePromptFormat = `You are analyzing a customer review for a local restaurant.
Return ONLY a single JSON object with this exact shape:

{
  "detectedRating": number | null,
  "toneLabel": string | null,
  "lengthSuggestion": "short" | "medium" | "long",
  "sentimentSummary": string | null,
  "issues": string[],
  "languageName": string | null
}

Do not include any explanation outside of the JSON.

Review:
"""
%s
"""`

// Analyze extracts structured signals from review text. Model output that
// is not valid JSON degrades to an empty analysis rather than an error.
func (s *Service) Analyze(ctx context.Context, reviewText string) (Analysis, error) {
	reviewText = strings.TrimSpace(reviewText)
	if reviewText == "" {
		return Analysis{}, fmt.Errorf("missing reviewText")
	}
	if s.ai == nil {
		return Analysis{}, fmt.Errorf("missing OPENAI_API_KEY")
	}

	raw, err := s.ai.Generate(ctx, fmt.Sprintf(analyzePromptFormat, reviewText))
	if err != nil {
		return Analysis{}, err
	}
	return parseAnalysis(raw), nil
}

func parseAnalysis(raw string) Analysis {
	a := Analysis{Issues: []string{}}

	raw = strings.TrimSpace(raw)
	// Models sometimes wrap JSON in a code fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if !gjson.Valid(raw) {
		return a
	}
	parsed := gjson.Parse(raw)

	if r := parsed.Get("detectedRating"); r.Exists() {
		n := r.Float()
		if n >= 1 && n <= 5 {
			v := int(n + 0.5)
			a.DetectedRating = &v
		}
	}
	switch parsed.Get("lengthSuggestion").String() {
	case "short":
		a.LengthSuggestion = "short"
	case "medium":
		a.LengthSuggestion = "medium"
	case "long":
		a.LengthSuggestion = "long"
	}
	a.ToneLabel = strings.TrimSpace(parsed.Get("toneLabel").String())
	a.SentimentSummary = strings.TrimSpace(parsed.Get("sentimentSummary").String())
	a.LanguageName = strings.TrimSpace(parsed.Get("languageName").String())
	parsed.Get("issues").ForEach(func(_, item gjson.Result) bool {
		if item.Type == gjson.String && strings.TrimSpace(item.String()) != "" {
			a.Issues = append(a.Issues, item.String())
		}
		return true
	})
	return a
}

// Inbox lists the user's reviews, newest first. The limit is clamped to
// 1..50 and defaults to 20.
func (s *Service) Inbox(ctx context.Context, userID string, platform, search string, limit int) ([]review.InboxItem, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.reviews.QueryInbox(ctx, userID, storage.InboxQuery{
		Platform: platform,
		Search:   strings.TrimSpace(search),
		Limit:    limit,
	})
}

// SaveRequest persists a reply for a review.
type SaveRequest struct {
	ReviewID string   `json:"reviewId"`
	Reply    string   `json:"reply"`
	Tags     []string `json:"tags"`
	Note     string   `json:"note"`
	Status   string   `json:"status"`
}

// SaveReply stores the reply. The status defaults to drafted; a posted
// status stamps posted_at.
func (s *Service) SaveReply(ctx context.Context, userID string, req SaveRequest) (review.Reply, error) {
	if strings.TrimSpace(req.ReviewID) == "" {
		return review.Reply{}, fmt.Errorf("reviewId is required")
	}
	if strings.TrimSpace(req.Reply) == "" {
		return review.Reply{}, fmt.Errorf("reply text is required")
	}

	status := review.ReplyStatus(req.Status)
	if req.Status == "" {
		status = review.StatusDrafted
	}
	if !review.ValidStatus(status) {
		return review.Reply{}, fmt.Errorf("invalid status %q", req.Status)
	}

	rep := review.Reply{
		ReviewID:  req.ReviewID,
		UserID:    userID,
		DraftText: req.Reply,
		FinalText: req.Reply,
		Status:    status,
		Tags:      req.Tags,
		Note:      req.Note,
	}
	if status == review.StatusPosted {
		now := time.Now().UTC()
		rep.PostedAt = &now
	}

	saved, err := s.replies.CreateReply(ctx, rep)
	if err != nil {
		return review.Reply{}, err
	}
	s.log.WithField("review_id", req.ReviewID).WithField("status", string(status)).
		Info("reply saved")
	return saved, nil
}

// Replies lists saved replies for a review.
func (s *Service) Replies(ctx context.Context, reviewID string) ([]review.Reply, error) {
	return s.replies.ListReplies(ctx, reviewID)
}
