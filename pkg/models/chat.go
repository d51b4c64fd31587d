package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles accepted at the API boundary.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ConversationTurn is one message in a conversation.
type ConversationTurn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Validate rejects unknown roles and blank content.
func (t ConversationTurn) Validate() error {
	if !t.Role.IsValid() {
		return fmt.Errorf("invalid role %q", t.Role)
	}
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("empty content for %s turn", t.Role)
	}
	return nil
}

// ChatRequest is an inbound chat call.
// An empty ChatID means no memory or summary side effects.
type ChatRequest struct {
	Message      string             `json:"message"`
	Model        string             `json:"model,omitempty"`
	History      []ConversationTurn `json:"history,omitempty"`
	ChatID       string             `json:"chat_id,omitempty"`
	UserIdentity string             `json:"user_identity,omitempty"`
}

// Validate checks the request shape before it reaches assembly or the cascade.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	for i, turn := range r.History {
		if err := turn.Validate(); err != nil {
			return fmt.Errorf("history[%d]: %w", i, err)
		}
	}
	return nil
}

// ChatReply is the result returned to the caller of a chat turn.
type ChatReply struct {
	Message string   `json:"message"`
	Images  []string `json:"images"`
	Model   string   `json:"model"`
	ChatID  string   `json:"chat_id,omitempty"`
}

// ChatSession is a chat id issued to a caller. UserIdentity is empty for
// anonymous callers, whose chats are not remembered as active.
type ChatSession struct {
	ChatID       string `json:"chat_id"`
	UserIdentity string `json:"user_identity,omitempty"`
}

// TokenUsage is the usage block reported by the upstream, when present.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a parsed upstream chat completion.
type Completion struct {
	Text     string
	Images   []string
	RawModel string
	Usage    *TokenUsage
}

// Attempt records the outcome of one model in a cascade.
// Err is nil for the successful attempt.
type Attempt struct {
	Model   string
	Err     error
	Elapsed time.Duration
}

// CascadeResult is the transient result of a successful cascade run.
type CascadeResult struct {
	Completion *Completion
	Model      string
	Attempts   []Attempt
}
