package models

import "time"

// Telemetry status values.
const (
	TelemetryStatusSuccess = "success"
	TelemetryStatusError   = "error"
)

// TokenCounts are either all reported by the upstream or all estimated.
type TokenCounts struct {
	Prompt     int  `json:"prompt_tokens"`
	Completion int  `json:"completion_tokens"`
	Total      int  `json:"total_tokens"`
	Estimated  bool `json:"estimated"`
}

// TelemetryEvent describes one conversational turn. Append-only.
// Sequence and Timestamp are assigned when the event is enqueued.
type TelemetryEvent struct {
	RequestID      string        `json:"request_id"`
	Sequence       uint64        `json:"sequence"`
	ConversationID string        `json:"conversation_id,omitempty"`
	UserIdentity   string        `json:"user_identity,omitempty"`
	Role           Role          `json:"role"`
	Model          string        `json:"model"`
	Tokens         TokenCounts   `json:"tokens"`
	Latency        time.Duration `json:"-"`
	Status         string        `json:"status"`
	Endpoint       string        `json:"endpoint"`
	ContentLength  int           `json:"content_length"`
	ContentSnippet string        `json:"content_snippet,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
