package llm

import (
	"context"
	"sync"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// MockCompleter is a configurable mock for testing completion callers.
// Set CompleteFunc to control behavior in tests.
type MockCompleter struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns a completion echoing the model name.
	CompleteFunc func(ctx context.Context, model string, messages []models.ConversationTurn, opts Options) (*models.Completion, error)

	mu    sync.Mutex
	calls []MockCompleteCall
}

// MockCompleteCall records a call to Complete.
type MockCompleteCall struct {
	Model    string
	Messages []models.ConversationTurn
	Options  Options
}

// NewMockCompleter creates a new mock completer.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, model string, messages []models.ConversationTurn, opts Options) (*models.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCompleteCall{Model: model, Messages: messages, Options: opts})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, model, messages, opts)
	}
	return &models.Completion{Text: "reply from " + model, RawModel: model}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockCompleter) Calls() []MockCompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCompleteCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CalledModels returns the model ids in call order.
func (m *MockCompleter) CalledModels() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Model
	}
	return out
}

// Ensure MockCompleter implements Completer at compile time.
var _ Completer = (*MockCompleter)(nil)

// RateLimited returns the error a completer reports for HTTP 429, for use in tests.
func RateLimited(model string) error {
	return newError(KindRateLimited, model, "rate limited", 429, nil)
}

// UpstreamFailure returns an upstream error with the given status, for use in tests.
func UpstreamFailure(model string, status int) error {
	return newError(KindUpstream, model, "upstream error", status, nil)
}
