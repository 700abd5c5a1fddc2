package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turntable-ai/turntable/pkg/logger"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

type ctxKey int

const identityKey ctxKey = iota

// IdentityFrom returns the authenticated identity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity injects an identity, mainly for tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier validates Supabase session tokens: HS256 JWTs signed with the
// project's JWT secret, carrying the user id in sub and the email claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier for the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

var _ TokenVerifier = (*JWTVerifier)(nil)

// Verify parses and validates the token.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("jwt secret not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	email, _ := claims["email"].(string)
	return Identity{UserID: sub, Email: email}, nil
}

// BearerToken extracts the Authorization bearer token, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token and injects the
// caller identity into the request context.
func RequireAuth(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" || verifier == nil {
				unauthorized(w)
				return
			}
			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				log.WithError(err).Debug("token rejected")
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}
