// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/domain/voice"
	"github.com/turntable-ai/turntable/internal/app/storage"
)

// Store implements the storage interfaces over a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ConnectionStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.ReplyStore = (*Store)(nil)
var _ storage.VoiceStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ConnectionStore --------------------------------------------------------

const connectionColumns = `id, user_id, email, provider, account_name, access_token,
	refresh_token, token_expiry, last_seen, locations, created_at, updated_at`

func (s *Store) UpsertConnection(ctx context.Context, conn connection.Connection) (connection.Connection, error) {
	locationsJSON, err := json.Marshal(conn.Locations)
	if err != nil {
		return connection.Connection{}, err
	}
	var lastSeenJSON []byte
	if conn.LastSeenByLocation != nil {
		lastSeenJSON, err = json.Marshal(conn.LastSeenByLocation)
		if err != nil {
			return connection.Connection{}, err
		}
	}
	var expiry *time.Time
	if !conn.Tokens.Expiry.IsZero() {
		expiry = &conn.Tokens.Expiry
	}

	// A nil watermark map means "leave the stored watermarks alone".
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO review_connections
			(user_id, email, provider, account_name, access_token, refresh_token,
			 token_expiry, last_seen, locations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::jsonb, '{}'::jsonb), $9)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			email         = EXCLUDED.email,
			account_name  = EXCLUDED.account_name,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry  = EXCLUDED.token_expiry,
			last_seen     = COALESCE($8::jsonb, review_connections.last_seen),
			locations     = EXCLUDED.locations,
			updated_at    = now()
		RETURNING `+connectionColumns+`
	`, conn.UserID, conn.Email, conn.Provider, conn.AccountName,
		conn.Tokens.AccessToken, conn.Tokens.RefreshToken, expiry, lastSeenJSON, locationsJSON)

	return scanConnection(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (connection.Connection, error) {
	var (
		c            connection.Connection
		expiry       sql.NullTime
		lastSeenRaw  []byte
		locationsRaw []byte
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.Provider, &c.AccountName,
		&c.Tokens.AccessToken, &c.Tokens.RefreshToken, &expiry,
		&lastSeenRaw, &locationsRaw, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return connection.Connection{}, storage.ErrNotFound
	}
	if err != nil {
		return connection.Connection{}, err
	}
	if expiry.Valid {
		c.Tokens.Expiry = expiry.Time
	}
	c.LastSeenByLocation = map[string]string{}
	if len(lastSeenRaw) > 0 {
		_ = json.Unmarshal(lastSeenRaw, &c.LastSeenByLocation)
	}
	if len(locationsRaw) > 0 {
		_ = json.Unmarshal(locationsRaw, &c.Locations)
	}
	return c, nil
}

func (s *Store) GetConnectionByUser(ctx context.Context, userID, provider string) (connection.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM review_connections
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	return scanConnection(row)
}

func (s *Store) ListConnections(ctx context.Context, provider string) ([]connection.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM review_connections
		WHERE $1 = '' OR provider = $1
		ORDER BY created_at
	`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) MergeLastSeen(ctx context.Context, connectionID string, updates map[string]string) error {
	updatesJSON, err := json.Marshal(updates)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE review_connections
		SET last_seen = last_seen || $2::jsonb, updated_at = now()
		WHERE id = $1
	`, connectionID, updatesJSON)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, userID, provider string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM review_connections
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ReviewStore ------------------------------------------------------------

func (s *Store) UpsertReviews(ctx context.Context, rows []review.Review) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reviews
			(user_id, provider, provider_review_id, location_name, rating,
			 review_text, author, source_url, review_created_at, review_updated_at, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, provider_review_id) DO UPDATE SET
			user_id           = EXCLUDED.user_id,
			location_name     = EXCLUDED.location_name,
			rating            = EXCLUDED.rating,
			review_text       = EXCLUDED.review_text,
			author            = EXCLUDED.author,
			source_url        = EXCLUDED.source_url,
			review_created_at = EXCLUDED.review_created_at,
			review_updated_at = EXCLUDED.review_updated_at,
			raw               = EXCLUDED.raw
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		var raw any
		if len(r.Raw) > 0 {
			raw = []byte(r.Raw)
		}
		if _, err := stmt.ExecContext(ctx, r.UserID, r.Provider, r.ProviderReviewID,
			r.LocationName, r.Rating, r.Text, r.Author, r.SourceURL,
			r.CreateTime, r.UpdateTime, raw); err != nil {
			return 0, fmt.Errorf("upsert review %s: %w", r.ProviderReviewID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) GetReview(ctx context.Context, id string) (review.Review, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_review_id, location_name, rating,
		       review_text, author, source_url, review_created_at, review_updated_at, raw
		FROM reviews
		WHERE id = $1
	`, id)

	var (
		r      review.Review
		rating sql.NullInt64
		raw    []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Provider, &r.ProviderReviewID, &r.LocationName,
		&rating, &r.Text, &r.Author, &r.SourceURL, &r.CreateTime, &r.UpdateTime, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Review{}, storage.ErrNotFound
	}
	if err != nil {
		return review.Review{}, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	if len(raw) > 0 {
		r.Raw = json.RawMessage(raw)
	}
	return r, nil
}

func (s *Store) QueryInbox(ctx context.Context, userID string, q storage.InboxQuery) ([]review.InboxItem, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	platform := q.Platform
	if platform == "all" || platform == "All" {
		platform = ""
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, author, rating, review_text, source_url, review_created_at
		FROM reviews
		WHERE user_id = $1
		  AND ($2 = '' OR lower(provider) = lower($2))
		  AND ($3 = '' OR review_text ILIKE '%' || $3 || '%')
		ORDER BY review_created_at DESC
		LIMIT $4
	`, userID, platform, q.Search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]review.InboxItem, 0)
	for rows.Next() {
		var (
			item     review.InboxItem
			provider string
			rating   sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &provider, &item.ReviewerName, &rating,
			&item.ReviewText, &item.SourceURL, &item.ReviewCreatedAt); err != nil {
			return nil, err
		}
		if rating.Valid {
			v := int(rating.Int64)
			item.Rating = &v
		}
		item.Platform = platformLabel(provider)
		items = append(items, item)
	}
	return items, rows.Err()
}

func platformLabel(provider string) string {
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// --- ReplyStore -------------------------------------------------------------

func (s *Store) CreateReply(ctx context.Context, rep review.Reply) (review.Reply, error) {
	tags := rep.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return review.Reply{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO review_replies
			(review_id, user_id, draft_text, final_text, status, tags, note, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, rep.ReviewID, rep.UserID, rep.DraftText, rep.FinalText, string(rep.Status),
		tagsJSON, rep.Note, rep.PostedAt)

	if err := row.Scan(&rep.ID, &rep.CreatedAt); err != nil {
		return review.Reply{}, err
	}
	rep.Tags = tags
	return rep, nil
}

func (s *Store) ListReplies(ctx context.Context, reviewID string) ([]review.Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, review_id, user_id, draft_text, final_text, status, tags, note,
		       posted_at, created_at
		FROM review_replies
		WHERE review_id = $1
		ORDER BY created_at
	`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]review.Reply, 0)
	for rows.Next() {
		var (
			rep      review.Reply
			status   string
			tagsRaw  []byte
			postedAt sql.NullTime
		)
		if err := rows.Scan(&rep.ID, &rep.ReviewID, &rep.UserID, &rep.DraftText,
			&rep.FinalText, &status, &tagsRaw, &rep.Note, &postedAt, &rep.CreatedAt); err != nil {
			return nil, err
		}
		rep.Status = review.ReplyStatus(status)
		if len(tagsRaw) > 0 {
			_ = json.Unmarshal(tagsRaw, &rep.Tags)
		}
		if postedAt.Valid {
			rep.PostedAt = &postedAt.Time
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// --- VoiceStore -------------------------------------------------------------

func (s *Store) GetVoiceProfile(ctx context.Context, userID string) (voice.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, samples, style_guide, updated_at
		FROM voice_profiles
		WHERE user_id = $1
	`, userID)

	var (
		p          voice.Profile
		samplesRaw []byte
	)
	err := row.Scan(&p.UserID, &samplesRaw, &p.StyleGuide, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return voice.Profile{}, err
	}
	if len(samplesRaw) > 0 {
		_ = json.Unmarshal(samplesRaw, &p.Samples)
	}
	return p, nil
}

func (s *Store) UpsertVoiceProfile(ctx context.Context, p voice.Profile) (voice.Profile, error) {
	samplesJSON, err := json.Marshal(p.Samples)
	if err != nil {
		return voice.Profile{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voice_profiles (user_id, samples, style_guide, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			samples     = EXCLUDED.samples,
			style_guide = EXCLUDED.style_guide,
			updated_at  = EXCLUDED.updated_at
	`, p.UserID, samplesJSON, p.StyleGuide, p.UpdatedAt)
	if err != nil {
		return voice.Profile{}, err
	}
	return p, nil
}

func (s *Store) DeleteVoiceProfile(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM voice_profiles WHERE user_id = $1
	`, userID)
	return err
}

// --- BillingStore -----------------------------------------------------------

func (s *Store) UpdateProfileByCustomer(ctx context.Context, customerID string, p billing.Profile) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET plan = $2, is_pro = $3, stripe_subscription_id = $4,
		    stripe_subscription_status = $5, current_period_end = $6, updated_at = now()
		WHERE stripe_customer_id = $1
	`, customerID, string(p.Plan), p.IsPro, p.StripeSubscriptionID,
		p.StripeSubscriptionStatus, p.CurrentPeriodEnd)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) GetProfileByCustomer(ctx context.Context, customerID string) (billing.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, plan, is_pro, stripe_customer_id, stripe_subscription_id,
		       stripe_subscription_status, current_period_end, updated_at
		FROM profiles
		WHERE stripe_customer_id = $1
	`, customerID)

	var (
		p         billing.Profile
		plan      string
		subID     sql.NullString
		subStatus sql.NullString
		periodEnd sql.NullTime
	)
	err := row.Scan(&p.ID, &plan, &p.IsPro, &p.StripeCustomerID, &subID,
		&subStatus, &periodEnd, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return billing.Profile{}, err
	}
	p.Plan = billing.Plan(plan)
	p.StripeSubscriptionID = subID.String
	p.StripeSubscriptionStatus = subStatus.String
	if periodEnd.Valid {
		p.CurrentPeriodEnd = &periodEnd.Time
	}
	return p, nil
}
