// Package supabase implements the storage interfaces over the Supabase
// REST API. Row ids are generated by the database; dedup and upsert
// resolution happen server-side via PostgREST conflict targets.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/domain/voice"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/supabase/client"
)

const (
	tableConnections   = "review_connections"
	tableReviews       = "reviews"
	tableReplies       = "review_replies"
	tableVoiceProfiles = "voice_profiles"
	tableProfiles      = "profiles"
)

// Store implements every storage interface over a Supabase project.
type Store struct {
	client *client.Client
}

var _ storage.ConnectionStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.ReplyStore = (*Store)(nil)
var _ storage.VoiceStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)

// New creates a store backed by the given Supabase client. The client must
// carry the service role key: every table here is behind row level security.
func New(c *client.Client) *Store {
	return &Store{client: c}
}

type connectionRow struct {
	ID           string            `json:"id,omitempty"`
	UserID       string            `json:"user_id"`
	Email        string            `json:"email"`
	Provider     string            `json:"provider"`
	AccountName  string            `json:"account_name,omitempty"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time        `json:"token_expiry,omitempty"`
	LastSeen     map[string]string `json:"last_seen,omitempty"`
	Locations    json.RawMessage   `json:"locations,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`
}

func (r connectionRow) toDomain() connection.Connection {
	c := connection.Connection{
		ID:          r.ID,
		UserID:      r.UserID,
		Email:       r.Email,
		Provider:    r.Provider,
		AccountName: r.AccountName,
		Tokens: connection.Tokens{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
		},
		LastSeenByLocation: r.LastSeen,
	}
	if r.TokenExpiry != nil {
		c.Tokens.Expiry = *r.TokenExpiry
	}
	if r.CreatedAt != nil {
		c.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		c.UpdatedAt = *r.UpdatedAt
	}
	if len(r.Locations) > 0 {
		_ = json.Unmarshal(r.Locations, &c.Locations)
	}
	if c.LastSeenByLocation == nil {
		c.LastSeenByLocation = map[string]string{}
	}
	return c
}

func connectionPayload(c connection.Connection) connectionRow {
	row := connectionRow{
		UserID:       c.UserID,
		Email:        c.Email,
		Provider:     c.Provider,
		AccountName:  c.AccountName,
		AccessToken:  c.Tokens.AccessToken,
		RefreshToken: c.Tokens.RefreshToken,
	}
	if !c.Tokens.Expiry.IsZero() {
		expiry := c.Tokens.Expiry
		row.TokenExpiry = &expiry
	}
	if len(c.Locations) > 0 {
		row.Locations, _ = json.Marshal(c.Locations)
	} else {
		row.Locations = json.RawMessage("[]")
	}
	return row
}

func (s *Store) UpsertConnection(ctx context.Context, conn connection.Connection) (connection.Connection, error) {
	existing, err := s.GetConnectionByUser(ctx, conn.UserID, conn.Provider)
	payload := connectionPayload(conn)
	now := time.Now().UTC()
	payload.UpdatedAt = &now

	switch {
	case err == nil:
		// Keep watermarks unless the caller supplied a replacement.
		if conn.LastSeenByLocation != nil {
			payload.LastSeen = conn.LastSeenByLocation
		}
		resp, err := s.client.From(tableConnections).
			Eq("id", existing.ID).
			ExecuteUpdate(ctx, payload)
		if err != nil {
			return connection.Connection{}, fmt.Errorf("update connection: %w", err)
		}
		return firstConnection(resp)
	case err == storage.ErrNotFound:
		if conn.LastSeenByLocation != nil {
			payload.LastSeen = conn.LastSeenByLocation
		} else {
			payload.LastSeen = map[string]string{}
		}
		resp, err := s.client.From(tableConnections).ExecuteInsert(ctx, payload)
		if err != nil {
			return connection.Connection{}, fmt.Errorf("insert connection: %w", err)
		}
		return firstConnection(resp)
	default:
		return connection.Connection{}, err
	}
}

func firstConnection(resp *client.Response) (connection.Connection, error) {
	if err := resp.Error(); err != nil {
		return connection.Connection{}, err
	}
	var rows []connectionRow
	if err := resp.JSON(&rows); err != nil {
		return connection.Connection{}, fmt.Errorf("decode connection: %w", err)
	}
	if len(rows) == 0 {
		return connection.Connection{}, storage.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetConnectionByUser(ctx context.Context, userID, provider string) (connection.Connection, error) {
	resp, err := s.client.From(tableConnections).
		Select("*").
		Eq("user_id", userID).
		Eq("provider", provider).
		Limit(1).
		Execute(ctx)
	if err != nil {
		return connection.Connection{}, fmt.Errorf("get connection: %w", err)
	}
	return firstConnection(resp)
}

func (s *Store) ListConnections(ctx context.Context, provider string) ([]connection.Connection, error) {
	q := s.client.From(tableConnections).Select("*").Order("created_at", true)
	if provider != "" {
		q = q.Eq("provider", provider)
	}
	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var rows []connectionRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	out := make([]connection.Connection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) MergeLastSeen(ctx context.Context, connectionID string, updates map[string]string) error {
	resp, err := s.client.From(tableConnections).
		Select("last_seen").
		Eq("id", connectionID).
		Single().
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("load watermarks: %w", err)
	}
	if resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	if err := resp.Error(); err != nil {
		return err
	}
	var row struct {
		LastSeen map[string]string `json:"last_seen"`
	}
	if err := resp.JSON(&row); err != nil {
		return fmt.Errorf("decode watermarks: %w", err)
	}
	merged := row.LastSeen
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range updates {
		merged[k] = v
	}
	now := time.Now().UTC()
	patch := map[string]any{"last_seen": merged, "updated_at": now}
	upResp, err := s.client.From(tableConnections).Eq("id", connectionID).ExecuteUpdate(ctx, patch)
	if err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}
	return upResp.Error()
}

func (s *Store) DeleteConnection(ctx context.Context, userID, provider string) error {
	resp, err := s.client.From(tableConnections).
		Eq("user_id", userID).
		Eq("provider", provider).
		ExecuteDelete(ctx)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if err := resp.Error(); err != nil {
		return err
	}
	var rows []connectionRow
	if err := resp.JSON(&rows); err == nil && len(rows) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type reviewRow struct {
	ID               string          `json:"id,omitempty"`
	UserID           string          `json:"user_id"`
	Provider         string          `json:"provider"`
	ProviderReviewID string          `json:"provider_review_id"`
	LocationName     string          `json:"location_name,omitempty"`
	Rating           *int            `json:"rating"`
	ReviewText       string          `json:"review_text"`
	Author           string          `json:"author,omitempty"`
	ReviewCreatedAt  string          `json:"review_created_at,omitempty"`
	ReviewUpdatedAt  string          `json:"review_updated_at,omitempty"`
	SourceURL        string          `json:"source_url,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

func (r reviewRow) toDomain() review.Review {
	return review.Review{
		ID:               r.ID,
		UserID:           r.UserID,
		Provider:         r.Provider,
		ProviderReviewID: r.ProviderReviewID,
		LocationName:     r.LocationName,
		Rating:           r.Rating,
		Text:             r.ReviewText,
		Author:           r.Author,
		SourceURL:        r.SourceURL,
		CreateTime:       r.ReviewCreatedAt,
		UpdateTime:       r.ReviewUpdatedAt,
		Raw:              r.Raw,
	}
}

func (s *Store) UpsertReviews(ctx context.Context, rows []review.Review) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	payload := make([]reviewRow, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, reviewRow{
			UserID:           r.UserID,
			Provider:         r.Provider,
			ProviderReviewID: r.ProviderReviewID,
			LocationName:     r.LocationName,
			Rating:           r.Rating,
			ReviewText:       r.Text,
			Author:           r.Author,
			SourceURL:        r.SourceURL,
			ReviewCreatedAt:  r.CreateTime,
			ReviewUpdatedAt:  r.UpdateTime,
			Raw:              r.Raw,
		})
	}
	resp, err := s.client.From(tableReviews).
		OnConflict("provider,provider_review_id").
		ExecuteUpsert(ctx, payload)
	if err != nil {
		return 0, fmt.Errorf("upsert reviews: %w", err)
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}
	return len(payload), nil
}

func (s *Store) GetReview(ctx context.Context, id string) (review.Review, error) {
	resp, err := s.client.From(tableReviews).
		Select("*").
		Eq("id", id).
		Single().
		Execute(ctx)
	if err != nil {
		return review.Review{}, fmt.Errorf("get review: %w", err)
	}
	if resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound {
		return review.Review{}, storage.ErrNotFound
	}
	if err := resp.Error(); err != nil {
		return review.Review{}, err
	}
	var row reviewRow
	if err := resp.JSON(&row); err != nil {
		return review.Review{}, fmt.Errorf("decode review: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) QueryInbox(ctx context.Context, userID string, q storage.InboxQuery) ([]review.InboxItem, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	query := s.client.From(tableReviews).
		Select("id,provider,author,rating,review_text,source_url,review_created_at").
		Eq("user_id", userID).
		Order("review_created_at", false).
		Limit(limit)
	if q.Platform != "" && !strings.EqualFold(q.Platform, "all") {
		query = query.Eq("provider", strings.ToLower(q.Platform))
	}
	if q.Search != "" {
		query = query.ILike("review_text", "%"+q.Search+"%")
	}
	resp, err := query.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var rows []reviewRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode inbox: %w", err)
	}
	items := make([]review.InboxItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, review.InboxItem{
			ID:              r.ID,
			Platform:        platformLabel(r.Provider),
			ReviewerName:    r.Author,
			Rating:          r.Rating,
			ReviewText:      r.ReviewText,
			SourceURL:       r.SourceURL,
			ReviewCreatedAt: r.ReviewCreatedAt,
		})
	}
	return items, nil
}

func platformLabel(provider string) string {
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

type replyRow struct {
	ID        string     `json:"id,omitempty"`
	ReviewID  string     `json:"review_id"`
	UserID    string     `json:"user_id"`
	DraftText string     `json:"draft_text"`
	FinalText string     `json:"final_text"`
	Status    string     `json:"status"`
	Tags      []string   `json:"tags"`
	Note      string     `json:"note,omitempty"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (r replyRow) toDomain() review.Reply {
	rep := review.Reply{
		ID:        r.ID,
		ReviewID:  r.ReviewID,
		UserID:    r.UserID,
		DraftText: r.DraftText,
		FinalText: r.FinalText,
		Status:    review.ReplyStatus(r.Status),
		Tags:      r.Tags,
		Note:      r.Note,
		PostedAt:  r.PostedAt,
	}
	if r.CreatedAt != nil {
		rep.CreatedAt = *r.CreatedAt
	}
	return rep
}

func (s *Store) CreateReply(ctx context.Context, rep review.Reply) (review.Reply, error) {
	tags := rep.Tags
	if tags == nil {
		tags = []string{}
	}
	payload := replyRow{
		ReviewID:  rep.ReviewID,
		UserID:    rep.UserID,
		DraftText: rep.DraftText,
		FinalText: rep.FinalText,
		Status:    string(rep.Status),
		Tags:      tags,
		Note:      rep.Note,
		PostedAt:  rep.PostedAt,
	}
	resp, err := s.client.From(tableReplies).ExecuteInsert(ctx, payload)
	if err != nil {
		return review.Reply{}, fmt.Errorf("insert reply: %w", err)
	}
	if err := resp.Error(); err != nil {
		return review.Reply{}, err
	}
	var rows []replyRow
	if err := resp.JSON(&rows); err != nil {
		return review.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if len(rows) == 0 {
		return review.Reply{}, fmt.Errorf("insert reply: empty response")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListReplies(ctx context.Context, reviewID string) ([]review.Reply, error) {
	resp, err := s.client.From(tableReplies).
		Select("*").
		Eq("review_id", reviewID).
		Order("created_at", true).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var rows []replyRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode replies: %w", err)
	}
	out := make([]review.Reply, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type voiceRow struct {
	UserID     string     `json:"user_id"`
	Samples    []string   `json:"samples"`
	StyleGuide string     `json:"style_guide"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

func (s *Store) GetVoiceProfile(ctx context.Context, userID string) (voice.Profile, error) {
	resp, err := s.client.From(tableVoiceProfiles).
		Select("*").
		Eq("user_id", userID).
		Single().
		Execute(ctx)
	if err != nil {
		return voice.Profile{}, fmt.Errorf("get voice profile: %w", err)
	}
	if resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound {
		return voice.Profile{}, storage.ErrNotFound
	}
	if err := resp.Error(); err != nil {
		return voice.Profile{}, err
	}
	var row voiceRow
	if err := resp.JSON(&row); err != nil {
		return voice.Profile{}, fmt.Errorf("decode voice profile: %w", err)
	}
	p := voice.Profile{UserID: row.UserID, Samples: row.Samples, StyleGuide: row.StyleGuide}
	if row.UpdatedAt != nil {
		p.UpdatedAt = *row.UpdatedAt
	}
	return p, nil
}

func (s *Store) UpsertVoiceProfile(ctx context.Context, p voice.Profile) (voice.Profile, error) {
	now := time.Now().UTC()
	payload := voiceRow{
		UserID:     p.UserID,
		Samples:    p.Samples,
		StyleGuide: p.StyleGuide,
		UpdatedAt:  &now,
	}
	resp, err := s.client.From(tableVoiceProfiles).
		OnConflict("user_id").
		ExecuteUpsert(ctx, payload)
	if err != nil {
		return voice.Profile{}, fmt.Errorf("upsert voice profile: %w", err)
	}
	if err := resp.Error(); err != nil {
		return voice.Profile{}, err
	}
	p.UpdatedAt = now
	return p, nil
}

func (s *Store) DeleteVoiceProfile(ctx context.Context, userID string) error {
	resp, err := s.client.From(tableVoiceProfiles).
		Eq("user_id", userID).
		ExecuteDelete(ctx)
	if err != nil {
		return fmt.Errorf("delete voice profile: %w", err)
	}
	return resp.Error()
}

type billingRow struct {
	ID                       string     `json:"id,omitempty"`
	Plan                     string     `json:"plan"`
	IsPro                    bool       `json:"is_pro"`
	StripeCustomerID         string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID     string     `json:"stripe_subscription_id,omitempty"`
	StripeSubscriptionStatus string     `json:"stripe_subscription_status,omitempty"`
	CurrentPeriodEnd         *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt                *time.Time `json:"updated_at,omitempty"`
}

func (r billingRow) toDomain() billing.Profile {
	p := billing.Profile{
		ID:                       r.ID,
		Plan:                     billing.Plan(r.Plan),
		IsPro:                    r.IsPro,
		StripeCustomerID:         r.StripeCustomerID,
		StripeSubscriptionID:     r.StripeSubscriptionID,
		StripeSubscriptionStatus: r.StripeSubscriptionStatus,
		CurrentPeriodEnd:         r.CurrentPeriodEnd,
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}

func (s *Store) UpdateProfileByCustomer(ctx context.Context, customerID string, p billing.Profile) (bool, error) {
	now := time.Now().UTC()
	patch := billingRow{
		Plan:                     string(p.Plan),
		IsPro:                    p.IsPro,
		StripeSubscriptionID:     p.StripeSubscriptionID,
		StripeSubscriptionStatus: p.StripeSubscriptionStatus,
		CurrentPeriodEnd:         p.CurrentPeriodEnd,
		UpdatedAt:                &now,
	}
	resp, err := s.client.From(tableProfiles).
		Eq("stripe_customer_id", customerID).
		ExecuteUpdate(ctx, patch)
	if err != nil {
		return false, fmt.Errorf("update billing profile: %w", err)
	}
	if err := resp.Error(); err != nil {
		return false, err
	}
	var rows []billingRow
	if err := resp.JSON(&rows); err != nil {
		return false, fmt.Errorf("decode billing profile: %w", err)
	}
	return len(rows) > 0, nil
}

func (s *Store) GetProfileByCustomer(ctx context.Context, customerID string) (billing.Profile, error) {
	resp, err := s.client.From(tableProfiles).
		Select("*").
		Eq("stripe_customer_id", customerID).
		Limit(1).
		Execute(ctx)
	if err != nil {
		return billing.Profile{}, fmt.Errorf("get billing profile: %w", err)
	}
	if err := resp.Error(); err != nil {
		return billing.Profile{}, err
	}
	var rows []billingRow
	if err := resp.JSON(&rows); err != nil {
		return billing.Profile{}, fmt.Errorf("decode billing profile: %w", err)
	}
	if len(rows) == 0 {
		return billing.Profile{}, storage.ErrNotFound
	}
	return rows[0].toDomain(), nil
}
