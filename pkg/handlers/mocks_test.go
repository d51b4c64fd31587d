package handlers

import (
	"context"

	"github.com/ekaya-inc/chat-gateway/pkg/auth"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

type mockChatPipeline struct {
	ChatFunc      func(ctx context.Context, req *models.ChatRequest, apiKey string) (*models.ChatReply, error)
	SummarizeFunc func(ctx context.Context, chatID string, messages []models.ConversationTurn, userIdentity, apiKey string) (*models.ConversationSummary, error)
	MemoryFunc    func(ctx context.Context, chatID, userIdentity string) (string, bool)

	chatCalls   int
	memoryCalls int
	lastReq     *models.ChatRequest
	lastKey     string
}

func (m *mockChatPipeline) Chat(ctx context.Context, req *models.ChatRequest, apiKey string) (*models.ChatReply, error) {
	m.chatCalls++
	m.lastReq = req
	m.lastKey = apiKey
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req, apiKey)
	}
	return &models.ChatReply{Message: "hello", Images: []string{}, Model: "model-a"}, nil
}

func (m *mockChatPipeline) Summarize(ctx context.Context, chatID string, messages []models.ConversationTurn, userIdentity, apiKey string) (*models.ConversationSummary, error) {
	m.lastKey = apiKey
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, chatID, messages, userIdentity, apiKey)
	}
	return &models.ConversationSummary{ID: chatID, Title: "T", SummaryText: "S"}, nil
}

func (m *mockChatPipeline) Memory(ctx context.Context, chatID, userIdentity string) (string, bool) {
	m.memoryCalls++
	if m.MemoryFunc != nil {
		return m.MemoryFunc(ctx, chatID, userIdentity)
	}
	return "", false
}

type mockSharer struct {
	CreateFunc func(ctx context.Context, title string, messages []models.ConversationTurn) (*models.SharedChat, error)
	GetFunc    func(ctx context.Context, id string) (*models.SharedChat, error)
}

func (m *mockSharer) Create(ctx context.Context, title string, messages []models.ConversationTurn) (*models.SharedChat, error) {
	return m.CreateFunc(ctx, title, messages)
}

func (m *mockSharer) Get(ctx context.Context, id string) (*models.SharedChat, error) {
	return m.GetFunc(ctx, id)
}

type mockPreviewer struct {
	ExtractFunc func(ctx context.Context, rawURL string) (map[string]string, error)
}

func (m *mockPreviewer) Extract(ctx context.Context, rawURL string) (map[string]string, error) {
	return m.ExtractFunc(ctx, rawURL)
}

type mockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	return m.VerifyFunc(ctx, token)
}

func (m *mockVerifier) Close() {}

type mockChatSessions struct {
	NewChatFunc func(ctx context.Context, user string) (*models.ChatSession, error)

	active       map[string]string
	resolveCalls int
}

func (m *mockChatSessions) NewChat(ctx context.Context, user string) (*models.ChatSession, error) {
	if m.NewChatFunc != nil {
		return m.NewChatFunc(ctx, user)
	}
	if m.active == nil {
		m.active = make(map[string]string)
	}
	m.active[user] = "issued-" + user
	return &models.ChatSession{ChatID: m.active[user], UserIdentity: user}, nil
}

func (m *mockChatSessions) ResolveChatID(_ context.Context, user, chatID string) string {
	m.resolveCalls++
	if chatID != "" || user == "" {
		return chatID
	}
	return m.active[user]
}

type mockDashboard struct {
	err          error
	got          models.TimeRange
	insightCalls int
}

func (m *mockDashboard) Summary(_ context.Context, tr models.TimeRange) (*models.DashboardSummary, error) {
	m.got = tr
	if m.err != nil {
		return nil, m.err
	}
	return &models.DashboardSummary{TotalMessages: 5, TopUsers: []models.NamedCount{}, TopModels: []models.NamedCount{}}, nil
}

func (m *mockDashboard) Timeseries(_ context.Context, tr models.TimeRange) (*models.DashboardTimeseries, error) {
	m.got = tr
	if m.err != nil {
		return nil, m.err
	}
	return &models.DashboardTimeseries{Points: []models.TimeseriesPoint{}}, nil
}

func (m *mockDashboard) TokenUsage(_ context.Context, tr models.TimeRange) (*models.TokenUsageStats, error) {
	m.got = tr
	if m.err != nil {
		return nil, m.err
	}
	return &models.TokenUsageStats{TotalTokens: 42, TokensByModel: []models.ModelTokenUsage{}}, nil
}

func (m *mockDashboard) Insights(context.Context) (*models.DashboardInsights, error) {
	m.insightCalls++
	if m.err != nil {
		return nil, m.err
	}
	insights := models.EmptyInsights()
	insights.TotalMessagesToday = 7
	return insights, nil
}
