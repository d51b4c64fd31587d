package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/logging"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/prompts"
)

// JobRunner schedules work to run after the response is sent.
type JobRunner interface {
	Go(ctx context.Context, name string, job func(ctx context.Context) error) error
}

var _ JobRunner = (*BackgroundRunner)(nil)

// ChatConfig configures the chat pipeline.
type ChatConfig struct {
	ChatModels     []string // Fallback cascade after the requested model
	SummarizeEvery int      // Full summarization every N messages; other turns quick-touch
	Endpoint       string   // Upstream endpoint label for telemetry
	Directive      string   // System directive (default: prompts.SystemDirective)
}

// ChatService runs the memory-augmented chat pipeline.
type ChatService struct {
	cascade    llm.FallbackCompleter
	memory     MemoryService
	telemetry  TelemetrySink
	summarizer *Summarizer
	runner     JobRunner
	quirks     QuirkTable
	config     ChatConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewChatService creates a new ChatService.
func NewChatService(
	cascade llm.FallbackCompleter,
	memory MemoryService,
	telemetry TelemetrySink,
	summarizer *Summarizer,
	runner JobRunner,
	quirks QuirkTable,
	config ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if config.Directive == "" {
		config.Directive = prompts.SystemDirective
	}
	if config.SummarizeEvery <= 0 {
		config.SummarizeEvery = 6
	}
	return &ChatService{
		cascade:    cascade,
		memory:     memory,
		telemetry:  telemetry,
		summarizer: summarizer,
		runner:     runner,
		quirks:     quirks,
		config:     config,
		logger:     logger.Named("chat"),
		now:        time.Now,
	}
}

// Chat answers one user message. Memory, telemetry and summarization are
// best-effort; only the upstream outcome decides success.
func (s *ChatService) Chat(ctx context.Context, req *models.ChatRequest, apiKey string) (*models.ChatReply, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidRequest, err)
	}

	ctx, requestID := llm.EnsureRequestID(ctx)
	modelIDs := CascadeModels(req.Model, s.config.ChatModels)
	if len(modelIDs) == 0 {
		return nil, fmt.Errorf("%w: no chat models configured", apperrors.ErrNotConfigured)
	}

	s.telemetry.Record(&models.TelemetryEvent{
		RequestID:      requestID,
		ConversationID: req.ChatID,
		UserIdentity:   req.UserIdentity,
		Role:           models.RoleUser,
		Model:          modelIDs[0],
		Tokens:         EstimatePromptTokens(req.Message),
		Status:         models.TelemetryStatusSuccess,
		Endpoint:       s.config.Endpoint,
		ContentLength:  utf8.RuneCountInString(req.Message),
		ContentSnippet: logging.Snippet(req.Message),
	})

	memory := ""
	if req.ChatID != "" || req.UserIdentity != "" {
		memory, _ = s.memory.MemoryContext(ctx, req.ChatID, req.UserIdentity)
	}

	start := s.now()
	result, err := s.cascade.CompleteWithFallbackFunc(ctx, modelIDs, func(model string) []models.ConversationTurn {
		return Assemble(req.History, req.Message, s.config.Directive, memory, s.quirks.For(model))
	}, llm.Options{APIKey: apiKey})
	latency := s.now().Sub(start)

	if err != nil {
		s.recordFailure(requestID, req, modelIDs, latency, err)
		return nil, err
	}

	completion := result.Completion
	s.telemetry.Record(&models.TelemetryEvent{
		RequestID:      requestID,
		ConversationID: req.ChatID,
		UserIdentity:   req.UserIdentity,
		Role:           models.RoleAssistant,
		Model:          result.Model,
		Tokens:         TokenCountsFor(completion.Usage, lastAttemptElapsed(result, latency)),
		Latency:        latency,
		Status:         models.TelemetryStatusSuccess,
		Endpoint:       s.config.Endpoint,
		ContentLength:  utf8.RuneCountInString(completion.Text),
		ContentSnippet: logging.Snippet(completion.Text),
	})

	if req.ChatID != "" {
		s.scheduleFollowUp(ctx, req, completion.Text, apiKey)
	}

	images := completion.Images
	if images == nil {
		images = []string{}
	}
	return &models.ChatReply{
		Message: completion.Text,
		Images:  images,
		Model:   result.Model,
		ChatID:  req.ChatID,
	}, nil
}

// Summarize runs summarization synchronously and stores the result.
func (s *ChatService) Summarize(ctx context.Context, chatID string, messages []models.ConversationTurn, userIdentity, apiKey string) (*models.ConversationSummary, error) {
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: messages[%d]: %v", apperrors.ErrInvalidRequest, i, err)
		}
	}
	return s.summarizer.Summarize(ctx, chatID, messages, userIdentity, apiKey)
}

// Memory returns the memory text a chat with these identifiers would receive.
func (s *ChatService) Memory(ctx context.Context, chatID, userIdentity string) (string, bool) {
	return s.memory.MemoryContext(ctx, chatID, userIdentity)
}

func (s *ChatService) recordFailure(requestID string, req *models.ChatRequest, modelIDs []string, latency time.Duration, err error) {
	model := modelIDs[len(modelIDs)-1]
	var agg *llm.AggregateError
	if errors.As(err, &agg) && len(agg.Attempts) > 0 {
		model = agg.Attempts[len(agg.Attempts)-1].Model
	}

	s.telemetry.Record(&models.TelemetryEvent{
		RequestID:      requestID,
		ConversationID: req.ChatID,
		UserIdentity:   req.UserIdentity,
		Role:           models.RoleAssistant,
		Model:          model,
		Tokens:         models.TokenCounts{Estimated: true},
		Latency:        latency,
		Status:         models.TelemetryStatusError,
		Endpoint:       s.config.Endpoint,
		ErrorMessage:   logging.SanitizeString(err.Error()),
	})

	s.logger.Warn("Chat failed",
		zap.String("request_id", requestID),
		zap.String("chat_id", req.ChatID),
		zap.Int("models", len(modelIDs)),
		zap.Duration("latency", latency),
		zap.Error(err))
}

// scheduleFollowUp updates memory for the conversation after the reply:
// a full summarization every SummarizeEvery messages, a quick-touch otherwise.
func (s *ChatService) scheduleFollowUp(ctx context.Context, req *models.ChatRequest, reply, apiKey string) {
	now := s.now().UTC()
	conversation := make([]models.ConversationTurn, 0, len(req.History)+2)
	conversation = append(conversation, req.History...)
	conversation = append(conversation,
		models.ConversationTurn{Role: models.RoleUser, Content: req.Message, Timestamp: &now},
		models.ConversationTurn{Role: models.RoleAssistant, Content: reply, Timestamp: &now},
	)
	messageCount := countConversational(conversation)

	chatID, user := req.ChatID, req.UserIdentity
	var err error
	if messageCount%s.config.SummarizeEvery == 0 {
		err = s.runner.Go(ctx, "summarize", func(ctx context.Context) error {
			_, err := s.summarizer.Summarize(ctx, chatID, conversation, user, apiKey)
			return err
		})
	} else {
		err = s.runner.Go(ctx, "quick-touch", func(ctx context.Context) error {
			s.memory.QuickTouch(ctx, chatID, user, messageCount)
			return nil
		})
	}
	if err != nil {
		s.logger.Debug("Follow-up not scheduled", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// CascadeModels returns requested followed by configured, without duplicates or blanks.
func CascadeModels(requested string, configured []string) []string {
	seen := make(map[string]bool, len(configured)+1)
	out := make([]string, 0, len(configured)+1)
	for _, m := range append([]string{requested}, configured...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// EstimatePromptTokens approximates the tokens of a user message at four
// characters per token. Flagged as estimated.
func EstimatePromptTokens(content string) models.TokenCounts {
	prompt := utf8.RuneCountInString(content) / 4
	if prompt < 1 {
		prompt = 1
	}
	return models.TokenCounts{Prompt: prompt, Total: prompt, Estimated: true}
}

func lastAttemptElapsed(result *models.CascadeResult, fallback time.Duration) time.Duration {
	if n := len(result.Attempts); n > 0 && result.Attempts[n-1].Elapsed > 0 {
		return result.Attempts[n-1].Elapsed
	}
	return fallback
}
