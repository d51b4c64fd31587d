// Package testhelpers provides utilities for testing chat-gateway components.
package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestKeyID is the kid of the key served by JWKSServer.
const TestKeyID = "test-key-1"

// JWKSServer serves a single RSA public key as a JWKS document and signs
// RS256 tokens with the matching private key.
type JWKSServer struct {
	URL    string
	key    *rsa.PrivateKey
	server *httptest.Server
}

// NewJWKSServer starts a JWKS endpoint that is closed when the test ends.
func NewJWKSServer(t *testing.T) *JWKSServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}

	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": TestKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	body, err := json.Marshal(jwks)
	if err != nil {
		t.Fatalf("marshal JWKS: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	return &JWKSServer{URL: server.URL, key: key, server: server}
}

// Sign returns claims signed with the served key.
func (s *JWKSServer) Sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// GoogleClaims returns Google-style ID token claims valid for one hour.
func GoogleClaims(audience, issuer, email string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            issuer,
		"aud":            audience,
		"sub":            "1234567890",
		"email":          email,
		"email_verified": true,
		"name":           "Test User",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}
