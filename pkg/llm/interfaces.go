package llm

import (
	"context"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// Completer performs a single completion call against one model.
// Use this interface for dependency injection to enable mocking in tests.
type Completer interface {
	Complete(ctx context.Context, model string, messages []models.ConversationTurn, opts Options) (*models.Completion, error)
}

// FallbackCompleter runs a completion across an ordered model list.
type FallbackCompleter interface {
	CompleteWithFallback(ctx context.Context, modelIDs []string, messages []models.ConversationTurn, opts Options) (*models.CascadeResult, error)
	CompleteWithFallbackFunc(ctx context.Context, modelIDs []string, build MessageBuilder, opts Options) (*models.CascadeResult, error)
}

// MessageBuilder returns the message list to send to a given model.
type MessageBuilder func(model string) []models.ConversationTurn

var _ FallbackCompleter = (*Cascade)(nil)
