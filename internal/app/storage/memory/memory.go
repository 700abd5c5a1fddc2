// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/domain/review"
	"github.com/turntable-ai/turntable/internal/app/domain/voice"
	"github.com/turntable-ai/turntable/internal/app/storage"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu            sync.RWMutex
	connections   map[string]connection.Connection // by connection id
	reviews       map[string]review.Review         // by (provider, provider_review_id) key
	reviewsByID   map[string]string                // review id -> dedup key
	replies       map[string][]review.Reply        // by review id
	voiceProfiles map[string]voice.Profile         // by user id
	billing       map[string]billing.Profile       // by stripe customer id
}

var _ storage.ConnectionStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.ReplyStore = (*Store)(nil)
var _ storage.VoiceStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		connections:   make(map[string]connection.Connection),
		reviews:       make(map[string]review.Review),
		reviewsByID:   make(map[string]string),
		replies:       make(map[string][]review.Reply),
		voiceProfiles: make(map[string]voice.Profile),
		billing:       make(map[string]billing.Profile),
	}
}

// --- ConnectionStore --------------------------------------------------------

func (s *Store) UpsertConnection(ctx context.Context, conn connection.Connection) (connection.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	for id, existing := range s.connections {
		if existing.UserID == conn.UserID && existing.Provider == conn.Provider {
			conn.ID = id
			conn.CreatedAt = existing.CreatedAt
			conn.UpdatedAt = now
			if conn.LastSeenByLocation == nil {
				conn.LastSeenByLocation = existing.LastSeenByLocation
			}
			s.connections[id] = cloneConn(conn)
			return cloneConn(conn), nil
		}
	}

	conn.ID = uuid.NewString()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.LastSeenByLocation == nil {
		conn.LastSeenByLocation = map[string]string{}
	}
	s.connections[conn.ID] = cloneConn(conn)
	return cloneConn(conn), nil
}

func (s *Store) GetConnectionByUser(ctx context.Context, userID, provider string) (connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.connections {
		if c.UserID == userID && c.Provider == provider {
			return cloneConn(c), nil
		}
	}
	return connection.Connection{}, storage.ErrNotFound
}

func (s *Store) ListConnections(ctx context.Context, provider string) ([]connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]connection.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		if provider == "" || c.Provider == provider {
			out = append(out, cloneConn(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MergeLastSeen(ctx context.Context, connectionID string, updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[connectionID]
	if !ok {
		return storage.ErrNotFound
	}
	if c.LastSeenByLocation == nil {
		c.LastSeenByLocation = map[string]string{}
	}
	for k, v := range updates {
		c.LastSeenByLocation[k] = v
	}
	c.UpdatedAt = time.Now().UTC()
	s.connections[connectionID] = c
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.connections {
		if c.UserID == userID && c.Provider == provider {
			delete(s.connections, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

// --- ReviewStore ------------------------------------------------------------

func dedupKey(provider, providerReviewID string) string {
	return provider + "\x00" + providerReviewID
}

func (s *Store) UpsertReviews(ctx context.Context, rows []review.Review) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		key := dedupKey(r.Provider, r.ProviderReviewID)
		if existing, ok := s.reviews[key]; ok {
			r.ID = existing.ID
		} else if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.reviews[key] = r
		s.reviewsByID[r.ID] = key
	}
	return len(rows), nil
}

func (s *Store) GetReview(ctx context.Context, id string) (review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.reviewsByID[id]
	if !ok {
		return review.Review{}, storage.ErrNotFound
	}
	return s.reviews[key], nil
}

func (s *Store) QueryInbox(ctx context.Context, userID string, q storage.InboxQuery) ([]review.InboxItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]review.InboxItem, 0)
	for _, r := range s.reviews {
		if r.UserID != userID {
			continue
		}
		platform := platformLabel(r.Provider)
		if q.Platform != "" && q.Platform != "all" && !strings.EqualFold(q.Platform, platform) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(r.Text), strings.ToLower(q.Search)) {
			continue
		}
		items = append(items, review.InboxItem{
			ID:              r.ID,
			Platform:        platform,
			ReviewerName:    r.Author,
			Rating:          r.Rating,
			ReviewText:      r.Text,
			SourceURL:       r.SourceURL,
			ReviewCreatedAt: r.CreateTime,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ReviewCreatedAt > items[j].ReviewCreatedAt })
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func platformLabel(provider string) string {
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// --- ReplyStore -------------------------------------------------------------

func (s *Store) CreateReply(ctx context.Context, rep review.Reply) (review.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	rep.CreatedAt = time.Now().UTC()
	s.replies[rep.ReviewID] = append(s.replies[rep.ReviewID], rep)
	return rep, nil
}

func (s *Store) ListReplies(ctx context.Context, reviewID string) ([]review.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]review.Reply, len(s.replies[reviewID]))
	copy(out, s.replies[reviewID])
	return out, nil
}

// --- VoiceStore -------------------------------------------------------------

func (s *Store) GetVoiceProfile(ctx context.Context, userID string) (voice.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.voiceProfiles[userID]
	if !ok {
		return voice.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpsertVoiceProfile(ctx context.Context, p voice.Profile) (voice.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	s.voiceProfiles[p.UserID] = p
	return p, nil
}

func (s *Store) DeleteVoiceProfile(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.voiceProfiles, userID)
	return nil
}

// --- BillingStore -----------------------------------------------------------

// SeedBillingProfile registers a profile under a stripe customer id so that
// webhook updates have something to match. Intended for tests.
func (s *Store) SeedBillingProfile(customerID string, p billing.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.StripeCustomerID = customerID
	s.billing[customerID] = p
}

func (s *Store) UpdateProfileByCustomer(ctx context.Context, customerID string, p billing.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.billing[customerID]
	if !ok {
		return false, nil
	}
	p.ID = existing.ID
	p.StripeCustomerID = customerID
	p.UpdatedAt = time.Now().UTC()
	s.billing[customerID] = p
	return true, nil
}

func (s *Store) GetProfileByCustomer(ctx context.Context, customerID string) (billing.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.billing[customerID]
	if !ok {
		return billing.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func cloneConn(c connection.Connection) connection.Connection {
	out := c
	out.LastSeenByLocation = make(map[string]string, len(c.LastSeenByLocation))
	for k, v := range c.LastSeenByLocation {
		out.LastSeenByLocation[k] = v
	}
	out.Locations = make([]connection.Location, len(c.Locations))
	copy(out.Locations, c.Locations)
	return out
}
