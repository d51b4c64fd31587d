package services

import (
	"context"
	"sync"

	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// mockSummaryRepository is a SummaryRepository with overridable behavior.
type mockSummaryRepository struct {
	GetFunc           func(ctx context.Context, chatID string) (*models.ConversationSummary, error)
	LatestForUserFunc func(ctx context.Context, userIdentity string) (*models.ConversationSummary, error)
	UpsertFunc        func(ctx context.Context, chatID string, fields models.SummaryFields) error
	TouchFunc         func(ctx context.Context, chatID, userIdentity string, messageCount int) error

	mu      sync.Mutex
	upserts []models.SummaryFields
	touches []int
}

func (m *mockSummaryRepository) Get(ctx context.Context, chatID string) (*models.ConversationSummary, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, chatID)
	}
	return nil, nil
}

func (m *mockSummaryRepository) LatestForUser(ctx context.Context, userIdentity string) (*models.ConversationSummary, error) {
	if m.LatestForUserFunc != nil {
		return m.LatestForUserFunc(ctx, userIdentity)
	}
	return nil, nil
}

func (m *mockSummaryRepository) Upsert(ctx context.Context, chatID string, fields models.SummaryFields) error {
	m.mu.Lock()
	m.upserts = append(m.upserts, fields)
	m.mu.Unlock()
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, chatID, fields)
	}
	return nil
}

func (m *mockSummaryRepository) Touch(ctx context.Context, chatID, userIdentity string, messageCount int) error {
	m.mu.Lock()
	m.touches = append(m.touches, messageCount)
	m.mu.Unlock()
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, chatID, userIdentity, messageCount)
	}
	return nil
}

// mockTelemetryRepository records saved events.
type mockTelemetryRepository struct {
	SaveUsageFunc func(ctx context.Context, event *models.TelemetryEvent) error

	mu       sync.Mutex
	usage    []*models.TelemetryEvent
	activity []*models.TelemetryEvent
}

func (m *mockTelemetryRepository) SaveUsage(ctx context.Context, event *models.TelemetryEvent) error {
	m.mu.Lock()
	m.usage = append(m.usage, event)
	m.mu.Unlock()
	if m.SaveUsageFunc != nil {
		return m.SaveUsageFunc(ctx, event)
	}
	return nil
}

func (m *mockTelemetryRepository) SaveActivity(_ context.Context, event *models.TelemetryEvent) error {
	m.mu.Lock()
	m.activity = append(m.activity, event)
	m.mu.Unlock()
	return nil
}

func (m *mockTelemetryRepository) activityEvents() []*models.TelemetryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.TelemetryEvent(nil), m.activity...)
}

// recordingSink is a synchronous TelemetrySink.
type recordingSink struct {
	mu     sync.Mutex
	events []*models.TelemetryEvent
}

func (s *recordingSink) Record(event *models.TelemetryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Sequence = uint64(len(s.events) + 1)
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []*models.TelemetryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.TelemetryEvent(nil), s.events...)
}

// inlineRunner runs jobs synchronously and records their names.
type inlineRunner struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (r *inlineRunner) Go(ctx context.Context, name string, job func(ctx context.Context) error) error {
	err := job(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.names = append(r.names, name)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return nil
}

// mockFallback is a FallbackCompleter with overridable behavior.
type mockFallback struct {
	RunFunc func(ctx context.Context, modelIDs []string, build llm.MessageBuilder, opts llm.Options) (*models.CascadeResult, error)

	mu       sync.Mutex
	modelIDs [][]string
	messages [][]models.ConversationTurn
	options  []llm.Options
}

func (m *mockFallback) CompleteWithFallback(ctx context.Context, modelIDs []string, messages []models.ConversationTurn, opts llm.Options) (*models.CascadeResult, error) {
	return m.CompleteWithFallbackFunc(ctx, modelIDs, func(string) []models.ConversationTurn { return messages }, opts)
}

func (m *mockFallback) CompleteWithFallbackFunc(ctx context.Context, modelIDs []string, build llm.MessageBuilder, opts llm.Options) (*models.CascadeResult, error) {
	m.mu.Lock()
	m.modelIDs = append(m.modelIDs, modelIDs)
	if len(modelIDs) > 0 {
		m.messages = append(m.messages, build(modelIDs[0]))
	}
	m.options = append(m.options, opts)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, modelIDs, build, opts)
	}
	return &models.CascadeResult{
		Completion: &models.Completion{Text: "reply from " + modelIDs[0]},
		Model:      modelIDs[0],
		Attempts:   []models.Attempt{{Model: modelIDs[0]}},
	}, nil
}

func textResult(model, text string) *models.CascadeResult {
	return &models.CascadeResult{
		Completion: &models.Completion{Text: text},
		Model:      model,
		Attempts:   []models.Attempt{{Model: model}},
	}
}
