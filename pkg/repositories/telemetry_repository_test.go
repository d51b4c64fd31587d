package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

var testIndexNames = IndexNames{Summaries: "chat_summaries", Usage: "token_usage", Activity: "ai_chat_logs"}

func sampleEvent(role models.Role) *models.TelemetryEvent {
	return &models.TelemetryEvent{
		RequestID:      "req-1",
		Sequence:       7,
		ConversationID: "chat-1",
		UserIdentity:   "u@example.com",
		Role:           role,
		Model:          "google/gemma-3-27b-it:free",
		Tokens:         models.TokenCounts{Prompt: 10, Completion: 20, Total: 30, Estimated: true},
		Latency:        1500 * time.Millisecond,
		Status:         models.TelemetryStatusSuccess,
		Endpoint:       "https://openrouter.ai/api/v1/chat/completions",
		ContentLength:  5,
		ContentSnippet: "hello",
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelemetryRepository_SaveUsage(t *testing.T) {
	store := newMockDocumentStore()
	repo := NewTelemetryRepository(store, testIndexNames, "dev")

	require.NoError(t, repo.SaveUsage(context.Background(), sampleEvent(models.RoleAssistant)))

	doc := store.doc("token_usage", "req-1")
	require.NotNil(t, doc)
	assert.Equal(t, "google", doc["provider"])
	assert.EqualValues(t, 30, doc["total_tokens"])
	assert.Equal(t, true, doc["estimated"])
	assert.EqualValues(t, 1500, doc["latency_ms"])
	assert.EqualValues(t, 7, doc["sequence"])
	assert.Equal(t, "chat-1", doc["chat_id"])
}

func TestTelemetryRepository_SaveActivity(t *testing.T) {
	store := newMockDocumentStore()
	repo := NewTelemetryRepository(store, testIndexNames, "dev")
	ctx := context.Background()

	require.NoError(t, repo.SaveActivity(ctx, sampleEvent(models.RoleUser)))
	require.NoError(t, repo.SaveActivity(ctx, sampleEvent(models.RoleAssistant)))

	user := store.doc("ai_chat_logs", "req-1-user")
	require.NotNil(t, user)
	assert.Equal(t, "dev", user["environment"])
	assert.Equal(t, "chat-1", user["session_id"])
	assert.Equal(t, false, user["is_anonymous"])
	assert.NotContains(t, user, "response_time_ms")

	assistant := store.doc("ai_chat_logs", "req-1-assistant")
	require.NotNil(t, assistant)
	assert.EqualValues(t, 1500, assistant["response_time_ms"])
	assert.Equal(t, "hello", assistant["content_snippet"])
}

func TestTelemetryRepository_NilStore(t *testing.T) {
	repo := NewTelemetryRepository(nil, testIndexNames, "dev")
	assert.ErrorIs(t, repo.SaveUsage(context.Background(), sampleEvent(models.RoleUser)), apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, repo.SaveActivity(context.Background(), sampleEvent(models.RoleUser)), apperrors.ErrStoreUnavailable)
}

func TestProviderOf(t *testing.T) {
	assert.Equal(t, "meta-llama", providerOf("meta-llama/llama-3.3-70b-instruct:free"))
	assert.Equal(t, "unknown", providerOf("local-model"))
	assert.Equal(t, "unknown", providerOf(""))
}
