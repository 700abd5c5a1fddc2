// Package poller sweeps every Google connection for fresh reviews, drafts
// reply suggestions, emails the owner and persists the reviews.
package poller

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/metrics"
	"github.com/turntable-ai/turntable/internal/app/services/reviews"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/clients/google"
	"github.com/turntable-ai/turntable/internal/clients/resend"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// ReviewSource is the subset of the Google client the sweep needs.
type ReviewSource interface {
	RefreshToken(ctx context.Context, refreshToken string) (google.TokenResponse, error)
	ListReviews(ctx context.Context, accessToken, location string) ([]google.Review, error)
}

// ReplyDrafter produces an AI reply suggestion for a review.
type ReplyDrafter interface {
	DraftReply(ctx context.Context, userID string, req reviews.ReplyRequest) (string, error)
}

// Mailer delivers review alert emails.
type Mailer interface {
	Send(ctx context.Context, msg resend.Message) (skipped bool, err error)
}

// Config wires the sweep dependencies.
type Config struct {
	Connections storage.ConnectionStore
	Reviews     storage.ReviewStore
	Google      ReviewSource
	Drafter     ReplyDrafter
	Mailer      Mailer
	// AppBaseURL is linked from alert emails.
	AppBaseURL string
	// Throttle paces outbound alert emails; defaults to one per 200ms.
	Throttle *rate.Limiter
	Logger   *logger.Logger
}

// Service runs review poll sweeps.
type Service struct {
	connections storage.ConnectionStore
	reviews     storage.ReviewStore
	google      ReviewSource
	drafter     ReplyDrafter
	mailer      Mailer
	appBaseURL  string
	throttle    *rate.Limiter
	log         *logger.Logger
	now         func() time.Time
}

// New constructs a poller.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("poller")
	}
	throttle := cfg.Throttle
	if throttle == nil {
		throttle = rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
	}
	return &Service{
		connections: cfg.Connections,
		reviews:     cfg.Reviews,
		google:      cfg.Google,
		drafter:     cfg.Drafter,
		mailer:      cfg.Mailer,
		appBaseURL:  cfg.AppBaseURL,
		throttle:    throttle,
		log:         log,
		now:         time.Now,
	}
}

// Result summarizes one sweep.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Sent    int    `json:"sent"`
	Saved   int    `json:"saved"`
}

// Sweep polls every Google connection. Per-location failures are logged and
// skipped so one broken location never stalls the other tenants.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	conns, err := s.connections.ListConnections(ctx, connection.ProviderGoogle)
	if err != nil {
		return Result{}, err
	}
	if len(conns) == 0 {
		return Result{OK: true, Message: "No Google connections configured."}, nil
	}

	res := Result{OK: true}
	for i := range conns {
		conn := conns[i]
		if conn.Tokens.AccessToken == "" {
			s.log.WithField("user_id", conn.UserID).Warn("skipping connection with missing token")
			continue
		}

		if conn.Tokens.RefreshToken != "" {
			if r, err := s.google.RefreshToken(ctx, conn.Tokens.RefreshToken); err != nil {
				s.log.WithField("user_id", conn.UserID).WithError(err).Warn("token refresh failed")
			} else {
				conn.Tokens.AccessToken = r.AccessToken
			}
		}

		newLastSeen := map[string]string{}
		for _, loc := range conn.Locations {
			sent, saved, watermark, err := s.pollLocation(ctx, conn, loc)
			if err != nil {
				s.log.WithField("user_id", conn.UserID).WithField("location", loc.Name).
					WithError(err).Error("poll failed for location")
				continue
			}
			res.Sent += sent
			res.Saved += saved
			newLastSeen[loc.Name] = watermark
		}

		if len(newLastSeen) > 0 {
			if err := s.connections.MergeLastSeen(ctx, conn.ID, newLastSeen); err != nil {
				s.log.WithField("user_id", conn.UserID).WithError(err).Error("persist watermarks failed")
			}
		}
	}
	return res, nil
}

func (s *Service) pollLocation(ctx context.Context, conn connection.Connection, loc connection.Location) (sent, saved int, watermark string, err error) {
	apiReviews, err := s.google.ListReviews(ctx, conn.Tokens.AccessToken, loc.Name)
	if err != nil {
		return 0, 0, "", err
	}
	last := conn.LastSeenByLocation[loc.Name]

	fresh := make([]google.Review, 0, len(apiReviews))
	for _, r := range apiReviews {
		if r.UpdateTime != "" && (last == "" || r.UpdateTime > last) {
			fresh = append(fresh, r)
		}
	}
	// Newest first reads better in the alert emails.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].UpdateTime > fresh[j].UpdateTime })

	for _, r := range fresh {
		rating := google.StarToNumber(r.StarRating)

		draft := ""
		if s.drafter != nil && r.Comment != "" {
			if reply, err := s.drafter.DraftReply(ctx, conn.UserID, reviews.ReplyRequest{
				ReviewText: r.Comment,
				Rating:     rating,
				Platform:   "Google",
				Tone:       "Friendly",
				Business:   loc.Title,
				Length:     "medium",
				Language:   "English",
			}); err != nil {
				s.log.WithField("user_id", conn.UserID).WithError(err).Warn("ai reply draft failed")
			} else {
				draft = reply
			}
		}

		alert := resend.ReviewAlert{
			LocationTitle: loc.Title,
			Author:        r.Reviewer.DisplayName,
			Rating:        rating,
			Text:          r.Comment,
			DraftReply:    draft,
			AppBaseURL:    s.appBaseURL,
		}
		skipped, err := s.mailer.Send(ctx, resend.Message{
			To:      conn.Email,
			Subject: alert.Subject(),
			HTML:    alert.HTML(),
		})
		if err != nil {
			return sent, saved, "", err
		}
		if !skipped {
			metrics.RecordAlertEmail("review")
		}
		sent++

		if err := s.throttle.Wait(ctx); err != nil {
			return sent, saved, "", err
		}
	}

	if len(fresh) > 0 {
		rows := make([]review.Review, 0, len(fresh))
		for _, r := range fresh {
			providerReviewID := r.Name
			if providerReviewID == "" {
				providerReviewID = r.ReviewID
			}
			raw, _ := json.Marshal(r)
			rows = append(rows, review.Review{
				UserID:           conn.UserID,
				Provider:         connection.ProviderGoogle,
				ProviderReviewID: providerReviewID,
				LocationName:     loc.Name,
				Rating:           google.StarToNumber(r.StarRating),
				Text:             r.Comment,
				Author:           r.Reviewer.DisplayName,
				CreateTime:       r.CreateTime,
				UpdateTime:       r.UpdateTime,
				Raw:              raw,
			})
		}
		n, err := s.reviews.UpsertReviews(ctx, rows)
		if err != nil {
			return sent, saved, "", err
		}
		saved += n
	}

	// Advance the high-water mark even when nothing was fresh, so the next
	// sweep has a baseline.
	switch {
	case len(apiReviews) > 0 && apiReviews[0].UpdateTime != "":
		watermark = apiReviews[0].UpdateTime
	case last != "":
		watermark = last
	default:
		watermark = s.now().UTC().Format(time.RFC3339)
	}
	return sent, saved, watermark, nil
}
