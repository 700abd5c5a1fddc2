// Package connections runs the Google Business Profile OAuth flow and
// manages the resulting provider connections.
package connections

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turntable-ai/turntable/internal/app/domain/connection"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/clients/google"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// Fallback identity used when the OAuth state is absent or unreadable.
const (
	DefaultUserID = "demo"
	DefaultEmail  = "owner@example.com"
)

// OAuthClient is the subset of the Google client the service needs.
type OAuthClient interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (google.TokenResponse, error)
	ListAccounts(ctx context.Context, accessToken string) ([]google.Account, error)
	ListLocations(ctx context.Context, accessToken, accountName string) ([]google.Location, error)
}

// Service manages provider connections.
type Service struct {
	google OAuthClient
	store  storage.ConnectionStore
	log    *logger.Logger
}

// New constructs a connections service.
func New(g OAuthClient, store storage.ConnectionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("connections")
	}
	return &Service{google: g, store: store, log: log}
}

type statePayload struct {
	U string `json:"u"`
	E string `json:"e"`
}

// EncodeState packs the user identity into the OAuth state parameter.
func EncodeState(userID, email string) string {
	raw, _ := json.Marshal(statePayload{U: userID, E: email})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState recovers the identity from the state parameter, falling back
// to the demo identity when the state is missing or malformed.
func DecodeState(state string) (userID, email string) {
	userID, email = DefaultUserID, DefaultEmail
	if state == "" {
		return userID, email
	}
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		// Tolerate padded encodings from other clients.
		raw, err = base64.URLEncoding.DecodeString(state)
	}
	if err != nil {
		return userID, email
	}
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return userID, email
	}
	if p.U != "" {
		userID = p.U
	}
	if p.E != "" {
		email = p.E
	}
	return userID, email
}

// StartAuth returns the Google consent URL for the user.
func (s *Service) StartAuth(userID, email string) string {
	if userID == "" {
		userID = DefaultUserID
	}
	if email == "" {
		email = DefaultEmail
	}
	return s.google.AuthURL(EncodeState(userID, email))
}

// HandleCallback exchanges the authorization code, loads the first account
// with its locations, and upserts the user's Google connection. Stored
// polling watermarks survive reconnects.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (connection.Connection, error) {
	if strings.TrimSpace(code) == "" {
		return connection.Connection{}, fmt.Errorf("missing authorization code")
	}
	userID, email := DecodeState(state)

	tokens, err := s.google.ExchangeCode(ctx, code)
	if err != nil {
		return connection.Connection{}, fmt.Errorf("exchange code: %w", err)
	}

	accounts, err := s.google.ListAccounts(ctx, tokens.AccessToken)
	if err != nil {
		return connection.Connection{}, fmt.Errorf("list accounts: %w", err)
	}

	var accountName string
	var locations []connection.Location
	if len(accounts) > 0 && accounts[0].Name != "" {
		accountName = accounts[0].Name
		locs, err := s.google.ListLocations(ctx, tokens.AccessToken, accountName)
		if err != nil {
			return connection.Connection{}, fmt.Errorf("list locations: %w", err)
		}
		for _, l := range locs {
			title := l.Title
			if title == "" {
				title = l.Name
			}
			locations = append(locations, connection.Location{Name: l.Name, Title: title})
		}
	}

	conn, err := s.store.UpsertConnection(ctx, connection.Connection{
		UserID:      userID,
		Email:       email,
		Provider:    connection.ProviderGoogle,
		AccountName: accountName,
		Tokens: connection.Tokens{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		},
		// Nil watermarks keep whatever the store already has.
		LastSeenByLocation: nil,
		Locations:          locations,
	})
	if err != nil {
		return connection.Connection{}, fmt.Errorf("save connection: %w", err)
	}

	s.log.WithField("user_id", userID).WithField("locations", len(locations)).
		Info("google connection established")
	return conn, nil
}

// Get returns the user's connection for the provider.
func (s *Service) Get(ctx context.Context, userID, provider string) (connection.Connection, error) {
	return s.store.GetConnectionByUser(ctx, userID, provider)
}

// Disconnect removes the user's connection for the provider.
func (s *Service) Disconnect(ctx context.Context, userID, provider string) error {
	if err := s.store.DeleteConnection(ctx, userID, provider); err != nil {
		return err
	}
	s.log.WithField("user_id", userID).WithField("provider", provider).Info("connection removed")
	return nil
}
