package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates ID tokens.
// This abstraction enables testing with mock implementations.
type TokenVerifier interface {
	// Verify validates tokenString and returns its claims.
	// Returns an error if the token is invalid, expired, for another
	// audience, or from an unaccepted issuer.
	Verify(ctx context.Context, tokenString string) (*Claims, error)
	// Close releases any resources held by the verifier.
	Close()
}

// GoogleConfig configures Google ID token verification.
type GoogleConfig struct {
	ClientID string   // Expected "aud"
	JWKSURL  string   // Google signing keys
	Issuers  []string // Accepted "iss" values
}

// GoogleVerifier validates Google Sign-In ID tokens against Google's JWKS.
// Keys are fetched at creation and refreshed in the background until Close.
type GoogleVerifier struct {
	jwks   keyfunc.Keyfunc
	config GoogleConfig
	cancel context.CancelFunc
}

// NewGoogleVerifier creates a verifier and loads the JWKS from config.JWKSURL.
// Returns an error if the endpoint cannot be loaded.
func NewGoogleVerifier(ctx context.Context, config GoogleConfig) (*GoogleVerifier, error) {
	if config.ClientID == "" {
		return nil, errors.New("google client id is required")
	}
	if config.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jwks, err := keyfunc.NewDefaultCtx(refreshCtx, []string{config.JWKSURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", config.JWKSURL, err)
	}

	return &GoogleVerifier{jwks: jwks, config: config, cancel: cancel}, nil
}

// Verify checks the RS256 signature, expiry, audience and issuer.
func (v *GoogleVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if len(v.config.Issuers) > 0 && !slices.Contains(v.config.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}
	if claims.Email == "" {
		return nil, errors.New("token has no email claim")
	}

	return claims, nil
}

// Close stops the background key refresh.
func (v *GoogleVerifier) Close() {
	v.cancel()
}

// Ensure GoogleVerifier implements TokenVerifier at compile time.
var _ TokenVerifier = (*GoogleVerifier)(nil)
