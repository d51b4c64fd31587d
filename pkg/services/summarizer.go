package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/jsonutil"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/prompts"
)

// ErrUnparseableSummary is returned when a model answered but neither the
// JSON nor the label format could be read from its reply.
var ErrUnparseableSummary = errors.New("summary response could not be parsed")

var (
	titleLabel   = regexp.MustCompile(`(?im)^[\s*#_]*title[\s*_]*:\s*(.+)$`)
	summaryLabel = regexp.MustCompile(`(?is)(?:^|\n)[\s*#_]*summary[\s*_]*:\s*(.+?)(?:\n[\s*#_]*topics[\s*_]*:|\z)`)
	topicsLabel  = regexp.MustCompile(`(?im)^[\s*#_]*topics[\s*_]*:\s*(.+)$`)
)

// SummarizerConfig configures conversation summarization.
type SummarizerConfig struct {
	Models []string // Priority-ordered summary model cascade
	Window int      // Most recent non-system turns sent (default: 40)
}

// Summarizer produces title/summary/topics for a conversation and stores it as memory.
type Summarizer struct {
	cascade llm.FallbackCompleter
	memory  MemoryService
	quirks  QuirkTable
	config  SummarizerConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSummarizer creates a new Summarizer.
func NewSummarizer(cascade llm.FallbackCompleter, memory MemoryService, quirks QuirkTable, config SummarizerConfig, logger *zap.Logger) *Summarizer {
	if config.Window <= 0 {
		config.Window = 40
	}
	return &Summarizer{
		cascade: cascade,
		memory:  memory,
		quirks:  quirks,
		config:  config,
		logger:  logger.Named("summarizer"),
		now:     time.Now,
	}
}

// Summarize summarizes messages and upserts the result for chatID.
// A store failure during the upsert is logged but does not fail the call.
func (s *Summarizer) Summarize(ctx context.Context, chatID string, messages []models.ConversationTurn, userIdentity, apiKey string) (*models.ConversationSummary, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat_id is required", apperrors.ErrInvalidRequest)
	}

	turns := WindowTurns(messages, s.config.Window)
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: no messages to summarize", apperrors.ErrInvalidRequest)
	}

	transcript := prompts.BuildSummaryPrompt(turns)
	temperature := float32(0.3)
	opts := llm.Options{
		APIKey:         apiKey,
		Temperature:    &temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	result, err := s.cascade.CompleteWithFallbackFunc(ctx, s.config.Models, func(model string) []models.ConversationTurn {
		return Assemble(nil, transcript, prompts.SummaryInstruction, "", s.quirks.For(model))
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", chatID, err)
	}

	parsed, err := ParseSummary(result.Completion.Text)
	if err != nil {
		s.logger.Warn("Unparseable summary",
			zap.String("chat_id", chatID),
			zap.String("model", result.Model),
			zap.Int("length", len(result.Completion.Text)))
		return nil, fmt.Errorf("summarize %s with %s: %w", chatID, result.Model, err)
	}

	summary := s.buildSummary(chatID, userIdentity, messages, parsed)
	s.memory.UpsertSummary(ctx, chatID, summaryFields(summary))

	s.logger.Info("Summarized conversation",
		zap.String("chat_id", chatID),
		zap.String("model", result.Model),
		zap.Int("turns", len(turns)),
		zap.Int("topics", len(summary.Topics)))

	return summary, nil
}

func (s *Summarizer) buildSummary(chatID, userIdentity string, messages []models.ConversationTurn, parsed models.SummaryResult) *models.ConversationSummary {
	now := s.now().UTC()
	first, last := now, now
	if earliest, latest, ok := timestampBounds(messages); ok {
		first, last = earliest, latest
	}

	return &models.ConversationSummary{
		ID:           chatID,
		UserIdentity: userIdentity,
		Title:        parsed.Title,
		SummaryText:  parsed.Summary,
		Topics:       parsed.Topics,
		MessageCount: countConversational(messages),
		FirstSeenAt:  first,
		LastSeenAt:   last,
	}
}

func summaryFields(s *models.ConversationSummary) models.SummaryFields {
	fields := models.SummaryFields{
		Title:        &s.Title,
		SummaryText:  &s.SummaryText,
		Topics:       s.Topics,
		MessageCount: &s.MessageCount,
		FirstSeenAt:  &s.FirstSeenAt,
		LastSeenAt:   &s.LastSeenAt,
	}
	if fields.Topics == nil {
		fields.Topics = []string{}
	}
	if s.UserIdentity != "" {
		fields.UserIdentity = &s.UserIdentity
	}
	return fields
}

// WindowTurns drops system turns and keeps the last n of the rest.
func WindowTurns(messages []models.ConversationTurn, n int) []models.ConversationTurn {
	out := make([]models.ConversationTurn, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// ParseSummary reads a summary from a model reply: JSON first, then the
// "Title:/Summary:/Topics:" label format.
func ParseSummary(text string) (models.SummaryResult, error) {
	if result, ok := parseSummaryJSON(text); ok {
		return result, nil
	}
	if result, ok := parseSummaryLabels(llm.StripFences(text)); ok {
		return result, nil
	}
	return models.SummaryResult{}, ErrUnparseableSummary
}

// summaryDoc keeps fields raw: models return strings, lists or nulls interchangeably.
type summaryDoc struct {
	Title   json.RawMessage `json:"title"`
	Summary json.RawMessage `json:"summary"`
	Topics  json.RawMessage `json:"topics"`
}

func parseSummaryJSON(text string) (models.SummaryResult, bool) {
	doc, err := llm.ParseJSONResponse[summaryDoc](text)
	if err != nil {
		return models.SummaryResult{}, false
	}

	result := models.SummaryResult{
		Title:   strings.TrimSpace(jsonutil.FlexibleStringValue(doc.Title)),
		Summary: strings.TrimSpace(jsonutil.FlexibleStringValue(doc.Summary)),
		Topics:  jsonutil.FlexibleStringList(doc.Topics),
	}
	if result.Summary == "" && result.Title == "" {
		return models.SummaryResult{}, false
	}
	return result, true
}

func parseSummaryLabels(text string) (models.SummaryResult, bool) {
	var result models.SummaryResult
	if m := titleLabel.FindStringSubmatch(text); len(m) == 2 {
		result.Title = cleanLabelValue(m[1])
	}
	if m := summaryLabel.FindStringSubmatch(text); len(m) == 2 {
		result.Summary = cleanLabelValue(m[1])
	}
	if m := topicsLabel.FindStringSubmatch(text); len(m) == 2 {
		result.Topics = jsonutil.SplitList(strings.Trim(cleanLabelValue(m[1]), "[]"))
	}
	if result.Summary == "" && result.Title == "" {
		return models.SummaryResult{}, false
	}
	return result, true
}

func cleanLabelValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `*"`))
}

// timestampBounds returns the earliest and latest turn timestamps, if any turn has one.
func timestampBounds(messages []models.ConversationTurn) (earliest, latest time.Time, ok bool) {
	for _, m := range messages {
		if m.Timestamp == nil || m.Timestamp.IsZero() {
			continue
		}
		ts := m.Timestamp.UTC()
		if !ok || ts.Before(earliest) {
			earliest = ts
		}
		if !ok || ts.After(latest) {
			latest = ts
		}
		ok = true
	}
	return earliest, latest, ok
}

func countConversational(messages []models.ConversationTurn) int {
	n := 0
	for _, m := range messages {
		if m.Role != models.RoleSystem {
			n++
		}
	}
	return n
}
