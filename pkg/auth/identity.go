// Package auth resolves who is calling: the upstream API key for a request
// and, optionally, a Google-verified user held in a signed cookie session.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityKey is the context key for the signed-in Identity.
const IdentityKey contextKey = "identity"

// Claims are the Google ID token claims used by the gateway.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Identity is a signed-in user.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// IdentityFromClaims builds an Identity from verified claims.
// The email is lower-cased so it can serve as user_identity.
func IdentityFromClaims(c *Claims) Identity {
	return Identity{
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
		Name:    c.Name,
		Picture: c.Picture,
	}
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity retrieves the signed-in identity from the request context.
// Returns false if the request carries no session.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok && id.Email != ""
}

// UserIdentity resolves the user a request acts for. A signed-in session
// always wins; an explicit value naming someone else is rejected with
// apperrors.ErrForbidden. Without a session the explicit value is used as is.
func UserIdentity(ctx context.Context, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	id, ok := GetIdentity(ctx)
	if !ok {
		return explicit, nil
	}
	if explicit != "" && !strings.EqualFold(explicit, id.Email) {
		return "", fmt.Errorf("%w: user_identity does not match the signed-in user", apperrors.ErrForbidden)
	}
	return id.Email, nil
}
