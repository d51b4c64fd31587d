package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
)

// MemoryService reads and writes conversation memory on a best-effort basis.
// Store failures are logged and reported as "no data" or ignored; they never
// reach the chat path.
type MemoryService interface {
	// GetConversationSummary returns the memory text for chatID.
	GetConversationSummary(ctx context.Context, chatID string) (string, bool)
	// GetLatestUserSummary returns the memory text of the user's most recent conversation.
	GetLatestUserSummary(ctx context.Context, userIdentity string) (string, bool)
	// MemoryContext prefers the conversation's own summary and falls back to the user's latest.
	MemoryContext(ctx context.Context, chatID, userIdentity string) (string, bool)
	// UpsertSummary merges fields into the summary for chatID.
	UpsertSummary(ctx context.Context, chatID string, fields models.SummaryFields) bool
	// QuickTouch records activity without summarizing.
	QuickTouch(ctx context.Context, chatID, userIdentity string, messageCount int) bool
}

type memoryService struct {
	repo   repositories.SummaryRepository
	logger *zap.Logger
}

// NewMemoryService creates a best-effort MemoryService over repo.
func NewMemoryService(repo repositories.SummaryRepository, logger *zap.Logger) MemoryService {
	return &memoryService{
		repo:   repo,
		logger: logger.Named("memory"),
	}
}

var _ MemoryService = (*memoryService)(nil)

func (s *memoryService) GetConversationSummary(ctx context.Context, chatID string) (string, bool) {
	if chatID == "" {
		return "", false
	}
	summary, err := s.repo.Get(ctx, chatID)
	if err != nil {
		s.logFailure("get conversation summary", err, zap.String("chat_id", chatID))
		return "", false
	}
	text := summary.MemoryText()
	return text, text != ""
}

func (s *memoryService) GetLatestUserSummary(ctx context.Context, userIdentity string) (string, bool) {
	if userIdentity == "" {
		return "", false
	}
	summary, err := s.repo.LatestForUser(ctx, userIdentity)
	if err != nil {
		s.logFailure("get latest user summary", err, zap.String("user_identity", userIdentity))
		return "", false
	}
	text := summary.MemoryText()
	return text, text != ""
}

func (s *memoryService) MemoryContext(ctx context.Context, chatID, userIdentity string) (string, bool) {
	if text, ok := s.GetConversationSummary(ctx, chatID); ok {
		return text, true
	}
	return s.GetLatestUserSummary(ctx, userIdentity)
}

func (s *memoryService) UpsertSummary(ctx context.Context, chatID string, fields models.SummaryFields) bool {
	if err := s.repo.Upsert(ctx, chatID, fields); err != nil {
		s.logFailure("upsert summary", err, zap.String("chat_id", chatID))
		return false
	}
	return true
}

func (s *memoryService) QuickTouch(ctx context.Context, chatID, userIdentity string, messageCount int) bool {
	if chatID == "" {
		return false
	}
	if err := s.repo.Touch(ctx, chatID, userIdentity, messageCount); err != nil {
		s.logFailure("quick touch", err, zap.String("chat_id", chatID))
		return false
	}
	return true
}

// logFailure logs at Debug when no store is configured (expected in degraded
// mode) and at Warn otherwise.
func (s *memoryService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		s.logger.Debug("Memory store unavailable", fields...)
		return
	}
	s.logger.Warn("Memory operation failed", fields...)
}
