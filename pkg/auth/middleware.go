package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware attaches session identity to requests.
type Middleware struct {
	sessions *SessionStore
	logger   *zap.Logger
}

// NewMiddleware creates a new auth middleware. A nil store disables sessions.
func NewMiddleware(sessions *SessionStore, logger *zap.Logger) *Middleware {
	return &Middleware{
		sessions: sessions,
		logger:   logger.Named("auth"),
	}
}

// LoadIdentity puts the session identity, if any, in the request context.
// Requests without a session pass through unchanged.
func (m *Middleware) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.sessions != nil {
			if id, ok := m.sessions.Identity(r); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects requests without a signed-in user.
func (m *Middleware) RequireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetIdentity(r.Context()); !ok {
			m.logger.Debug("Request without session", zap.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			body := map[string]any{"success": false, "error": "Sign-in required"}
			if err := json.NewEncoder(w).Encode(body); err != nil {
				m.logger.Error("Failed to write unauthorized response", zap.Error(err))
			}
			return
		}
		next(w, r)
	}
}
