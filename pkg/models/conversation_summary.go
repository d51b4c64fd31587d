package models

import (
	"strings"
	"time"
)

// ConversationSummary is the long-term memory document for one conversation.
// ID equals the chat id and never changes once created.
type ConversationSummary struct {
	ID           string    `json:"chat_id"`
	UserIdentity string    `json:"user_identity,omitempty"`
	Title        string    `json:"title,omitempty"`
	SummaryText  string    `json:"summary,omitempty"`
	Topics       []string  `json:"topics,omitempty"`
	MessageCount int       `json:"message_count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// MemoryText renders the summary as the text injected into later chats.
// Returns empty string when there is nothing worth injecting.
func (s *ConversationSummary) MemoryText() string {
	if s == nil || (s.Title == "" && s.SummaryText == "") {
		return ""
	}

	var b strings.Builder
	if s.Title != "" {
		b.WriteString("Title: ")
		b.WriteString(s.Title)
		b.WriteString("\n")
	}
	if s.SummaryText != "" {
		b.WriteString("Summary: ")
		b.WriteString(s.SummaryText)
		b.WriteString("\n")
	}
	if len(s.Topics) > 0 {
		b.WriteString("Topics: ")
		b.WriteString(strings.Join(s.Topics, ", "))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// SummaryFields is a partial update for a ConversationSummary.
// Nil fields are left untouched by an upsert.
type SummaryFields struct {
	UserIdentity *string
	Title        *string
	SummaryText  *string
	Topics       []string
	MessageCount *int
	FirstSeenAt  *time.Time
	LastSeenAt   *time.Time
}

// Doc returns the field map written to the store. Only set fields are included.
func (f SummaryFields) Doc() map[string]any {
	doc := make(map[string]any)
	if f.UserIdentity != nil {
		doc["user_identity"] = *f.UserIdentity
	}
	if f.Title != nil {
		doc["title"] = *f.Title
	}
	if f.SummaryText != nil {
		doc["summary"] = *f.SummaryText
	}
	if f.Topics != nil {
		doc["topics"] = f.Topics
	}
	if f.MessageCount != nil {
		doc["message_count"] = *f.MessageCount
	}
	if f.FirstSeenAt != nil {
		doc["first_seen_at"] = f.FirstSeenAt.UTC().Format(time.RFC3339)
	}
	if f.LastSeenAt != nil {
		doc["last_seen_at"] = f.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// SummaryResult is the title/summary/topics triple produced by summarization.
type SummaryResult struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}
