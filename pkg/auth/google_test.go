package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/chat-gateway/pkg/testhelpers"
)

const (
	testClientID = "client-123.apps.googleusercontent.com"
	testIssuer   = "https://accounts.google.com"
)

func newTestVerifier(t *testing.T) (*GoogleVerifier, *testhelpers.JWKSServer) {
	t.Helper()
	jwks := testhelpers.NewJWKSServer(t)
	v, err := NewGoogleVerifier(context.Background(), GoogleConfig{
		ClientID: testClientID,
		JWKSURL:  jwks.URL,
		Issuers:  []string{testIssuer, "accounts.google.com"},
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v, jwks
}

func TestGoogleVerifier_ValidToken(t *testing.T) {
	v, jwks := newTestVerifier(t)
	token := jwks.Sign(t, testhelpers.GoogleClaims(testClientID, testIssuer, "User@Example.com"))

	claims, err := v.Verify(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "User@Example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "user@example.com", IdentityFromClaims(claims).Email)
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	v, jwks := newTestVerifier(t)
	other := testhelpers.NewJWKSServer(t)

	expired := testhelpers.GoogleClaims(testClientID, testIssuer, "u@example.com")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noEmail := testhelpers.GoogleClaims(testClientID, testIssuer, "")
	delete(noEmail, "email")

	tests := []struct {
		name  string
		token string
	}{
		{"wrong audience", jwks.Sign(t, testhelpers.GoogleClaims("someone-else", testIssuer, "u@example.com"))},
		{"wrong issuer", jwks.Sign(t, testhelpers.GoogleClaims(testClientID, "https://evil.example.com", "u@example.com"))},
		{"expired", jwks.Sign(t, expired)},
		{"no email", jwks.Sign(t, noEmail)},
		{"foreign key", other.Sign(t, testhelpers.GoogleClaims(testClientID, testIssuer, "u@example.com"))},
		{"unsigned", unsignedToken(t)},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.Error(t, err)
		})
	}
}

func unsignedToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, testhelpers.GoogleClaims(testClientID, testIssuer, "u@example.com"))
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return s
}

func TestNewGoogleVerifier_RequiresConfig(t *testing.T) {
	_, err := NewGoogleVerifier(context.Background(), GoogleConfig{JWKSURL: "http://localhost"})
	assert.Error(t, err)

	_, err = NewGoogleVerifier(context.Background(), GoogleConfig{ClientID: testClientID})
	assert.Error(t, err)
}
