// Package connection defines provider connection records: one OAuth-linked
// business account per (user, provider), with its locations and per-location
// polling watermarks.
package connection

import "time"

// ProviderGoogle is the only review provider currently supported.
const ProviderGoogle = "google"

// Tokens holds the OAuth credentials for a connection. The access token is
// refreshed opportunistically before use when a refresh token is present.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Location is a provider business location attached to a connection.
// Name is the provider resource name (e.g. "locations/123"), Title the
// human-readable label.
type Location struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Connection links an application user to an OAuth-authorized provider
// account. LastSeenByLocation maps location resource names to the RFC3339
// update time of the newest review already processed for that location.
type Connection struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	Email              string            `json:"email"`
	Provider           string            `json:"provider"`
	AccountName        string            `json:"account_name,omitempty"`
	Tokens             Tokens            `json:"tokens"`
	LastSeenByLocation map[string]string `json:"last_seen_by_location"`
	Locations          []Location        `json:"locations"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}
