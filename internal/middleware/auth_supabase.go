package middleware

import (
	"context"

	"github.com/turntable-ai/turntable/supabase/client"
)

// SupabaseVerifier resolves tokens through the hosted auth endpoint instead
// of local JWT validation. Useful when the JWT secret is not available.
type SupabaseVerifier struct {
	auth *client.AuthClient
}

// NewSupabaseVerifier wraps the Supabase client's auth endpoint.
func NewSupabaseVerifier(c *client.Client) *SupabaseVerifier {
	return &SupabaseVerifier{auth: c.Auth()}
}

var _ TokenVerifier = (*SupabaseVerifier)(nil)

// Verify looks the token up against /auth/v1/user.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	user, err := v.auth.GetUser(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}
