// Package storage declares the persistence interfaces used by the services.
// Implementations live in the memory, supabase and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/domain/voice"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ConnectionStore persists provider connections and their locations.
type ConnectionStore interface {
	// UpsertConnection creates or updates the (user, provider) connection
	// and replaces its locations wholesale.
	UpsertConnection(ctx context.Context, conn connection.Connection) (connection.Connection, error)
	GetConnectionByUser(ctx context.Context, userID, provider string) (connection.Connection, error)
	ListConnections(ctx context.Context, provider string) ([]connection.Connection, error)
	// MergeLastSeen merges the given location watermarks into the stored map.
	MergeLastSeen(ctx context.Context, connectionID string, updates map[string]string) error
	DeleteConnection(ctx context.Context, userID, provider string) error
}

// InboxQuery filters the review inbox listing.
type InboxQuery struct {
	// Platform filters by provider platform; empty or "all" means no filter.
	Platform string
	// Search is a case-insensitive substring match on the review text.
	Search string
	// Limit is clamped to 1..50 by the service; default 20.
	Limit int
}

// ReviewStore persists provider reviews.
type ReviewStore interface {
	// UpsertReviews writes rows keyed on (provider, provider_review_id);
	// re-upserting an existing key overwrites the row. Returns the number
	// of rows written.
	UpsertReviews(ctx context.Context, rows []review.Review) (int, error)
	GetReview(ctx context.Context, id string) (review.Review, error)
	QueryInbox(ctx context.Context, userID string, q InboxQuery) ([]review.InboxItem, error)
}

// ReplyStore persists review replies.
type ReplyStore interface {
	CreateReply(ctx context.Context, rep review.Reply) (review.Reply, error)
	ListReplies(ctx context.Context, reviewID string) ([]review.Reply, error)
}

// VoiceStore persists brand voice profiles, one per user.
type VoiceStore interface {
	GetVoiceProfile(ctx context.Context, userID string) (voice.Profile, error)
	UpsertVoiceProfile(ctx context.Context, p voice.Profile) (voice.Profile, error)
	DeleteVoiceProfile(ctx context.Context, userID string) error
}

// BillingStore persists billing profiles mutated by webhook events.
type BillingStore interface {
	// UpdateProfileByCustomer applies the update to the profile whose
	// stripe_customer_id matches. Returns false when no profile matched
	// (a no-op, not an error).
	UpdateProfileByCustomer(ctx context.Context, customerID string, p billing.Profile) (bool, error)
	GetProfileByCustomer(ctx context.Context, customerID string) (billing.Profile, error)
}
