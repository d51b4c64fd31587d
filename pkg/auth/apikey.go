package auth

import (
	"net/http"
	"strings"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
)

// ResolveAPIKey returns the upstream API key for r: the Authorization Bearer
// token when present, otherwise fallback. Returns apperrors.ErrUnauthorized
// when neither is set.
func ResolveAPIKey(r *http.Request, fallback string) (string, error) {
	if key := bearerToken(r.Header.Get("Authorization")); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(fallback); key != "" {
		return key, nil
	}
	return "", apperrors.ErrUnauthorized
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
