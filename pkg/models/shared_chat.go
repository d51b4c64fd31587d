package models

import "time"

// SharedChat is a read-only snapshot of a conversation published under a link.
type SharedChat struct {
	ID        string             `json:"id"`
	Title     string             `json:"title,omitempty"`
	Messages  []ConversationTurn `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Expired reports whether the share is past its expiry at now.
func (s *SharedChat) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
