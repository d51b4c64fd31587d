package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/sessions"
)

// SessionName is the name of the login session cookie.
const SessionName = "chat-session"

// Session value keys.
const (
	sessionKeyEmail   = "email"
	sessionKeyName    = "name"
	sessionKeyPicture = "picture"
)

// SessionStore keeps the signed-in identity in a signed cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie session store.
//
// The secret can be any passphrase; it is SHA-256 hashed to derive the
// signing key. An empty secret generates a random key, so sessions do not
// survive a restart.
func NewSessionStore(secret string, maxAge time.Duration, secure bool) (*SessionStore, error) {
	var key [32]byte
	if secret != "" {
		key = sha256.Sum256([]byte(secret))
	} else if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}, nil
}

// Identity returns the identity stored in the request's session cookie.
func (s *SessionStore) Identity(r *http.Request) (Identity, bool) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return Identity{}, false
	}
	email, _ := session.Values[sessionKeyEmail].(string)
	if email == "" {
		return Identity{}, false
	}
	name, _ := session.Values[sessionKeyName].(string)
	picture, _ := session.Values[sessionKeyPicture].(string)
	return Identity{Email: email, Name: name, Picture: picture}, true
}

// Login stores id in the session cookie.
func (s *SessionStore) Login(w http.ResponseWriter, r *http.Request, id Identity) error {
	// A cookie signed with an old key yields an error and a fresh session.
	session, _ := s.store.Get(r, SessionName)
	session.Values[sessionKeyEmail] = id.Email
	session.Values[sessionKeyName] = id.Name
	session.Values[sessionKeyPicture] = id.Picture
	return session.Save(r, w)
}

// Logout expires the session cookie.
func (s *SessionStore) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// IsHTTPS reports whether baseURL uses https; used to default the cookie Secure flag.
func IsHTTPS(baseURL string) bool {
	u, err := url.Parse(baseURL)
	return err == nil && u.Scheme == "https"
}
