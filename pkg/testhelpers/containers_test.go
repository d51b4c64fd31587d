//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestOpenSearchContainer_Ping(t *testing.T) {
	cluster := GetTestOpenSearch(t)

	if err := cluster.Client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestJWKSServer_SignsVerifiableTokens(t *testing.T) {
	jwks := NewJWKSServer(t)
	token := jwks.Sign(t, GoogleClaims("aud", "iss", "u@example.com"))
	if token == "" {
		t.Fatal("expected a signed token")
	}
}
