package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// TelemetryRepository persists per-turn telemetry documents. Append-only.
type TelemetryRepository interface {
	// SaveUsage writes the token_usage document of one upstream call, keyed by request id.
	SaveUsage(ctx context.Context, event *models.TelemetryEvent) error
	// SaveActivity writes one ai_chat_logs document.
	SaveActivity(ctx context.Context, event *models.TelemetryEvent) error
}

type telemetryRepository struct {
	store       DocumentStore
	usage       string
	activity    string
	environment string
}

// NewTelemetryRepository creates a TelemetryRepository over store.
func NewTelemetryRepository(store DocumentStore, names IndexNames, environment string) TelemetryRepository {
	return &telemetryRepository{
		store:       store,
		usage:       names.Usage,
		activity:    names.Activity,
		environment: environment,
	}
}

var _ TelemetryRepository = (*telemetryRepository)(nil)

func (r *telemetryRepository) SaveUsage(ctx context.Context, event *models.TelemetryEvent) error {
	if r.store == nil {
		return apperrors.ErrStoreUnavailable
	}
	if err := r.store.Index(ctx, r.usage, event.RequestID, usageDoc(event)); err != nil {
		return fmt.Errorf("failed to save token usage: %w", err)
	}
	return nil
}

func (r *telemetryRepository) SaveActivity(ctx context.Context, event *models.TelemetryEvent) error {
	if r.store == nil {
		return apperrors.ErrStoreUnavailable
	}
	if err := r.store.Index(ctx, r.activity, documentID(event), activityDoc(event, r.environment)); err != nil {
		return fmt.Errorf("failed to save chat activity: %w", err)
	}
	return nil
}

// documentID is unique per turn in ai_chat_logs: a request yields one user and one assistant event.
func documentID(event *models.TelemetryEvent) string {
	if event.RequestID == "" {
		return ""
	}
	return fmt.Sprintf("%s-%s", event.RequestID, event.Role)
}

func usageDoc(event *models.TelemetryEvent) map[string]any {
	return map[string]any{
		"request_id":        event.RequestID,
		"sequence":          event.Sequence,
		"chat_id":           event.ConversationID,
		"user_identity":     event.UserIdentity,
		"role":              string(event.Role),
		"model":             event.Model,
		"provider":          providerOf(event.Model),
		"endpoint":          event.Endpoint,
		"status":            event.Status,
		"prompt_tokens":     event.Tokens.Prompt,
		"completion_tokens": event.Tokens.Completion,
		"total_tokens":      event.Tokens.Total,
		"estimated":         event.Tokens.Estimated,
		"latency_ms":        event.Latency.Milliseconds(),
		"timestamp":         event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func activityDoc(event *models.TelemetryEvent, environment string) map[string]any {
	doc := map[string]any{
		"request_id":     event.RequestID,
		"sequence":       event.Sequence,
		"session_id":     event.ConversationID,
		"user_id":        event.UserIdentity,
		"role":           string(event.Role),
		"model":          event.Model,
		"status":         event.Status,
		"environment":    environment,
		"content_length": event.ContentLength,
		"is_anonymous":   event.UserIdentity == "",
		"@timestamp":     event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.Role == models.RoleAssistant {
		doc["response_time_ms"] = event.Latency.Milliseconds()
	}
	if event.ContentSnippet != "" {
		doc["content_snippet"] = event.ContentSnippet
	}
	if event.ErrorMessage != "" {
		doc["error_message"] = event.ErrorMessage
	}
	return doc
}

// providerOf returns the vendor prefix of an aggregator model id ("google/gemma" -> "google").
func providerOf(model string) string {
	if i := strings.IndexByte(model, '/'); i > 0 {
		return model[:i]
	}
	return "unknown"
}
