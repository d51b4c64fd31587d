package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
)

// ChatSessionService issues chat ids and keeps each user in their most
// recent chat across requests.
type ChatSessionService struct {
	repo   repositories.ActiveChatRepository
	logger *zap.Logger
	newID  func() string
}

// NewChatSessionService creates a ChatSessionService.
func NewChatSessionService(repo repositories.ActiveChatRepository, logger *zap.Logger) *ChatSessionService {
	return &ChatSessionService{repo: repo, logger: logger.Named("chat-session"), newID: uuid.NewString}
}

// NewChat starts a fresh chat and, for a known user, makes it their active one.
func (s *ChatSessionService) NewChat(ctx context.Context, user string) (*models.ChatSession, error) {
	session := &models.ChatSession{ChatID: s.newID(), UserIdentity: user}
	if user == "" {
		return session, nil
	}
	if err := s.repo.SetActive(ctx, user, session.ChatID); err != nil {
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}
	return session, nil
}

// ResolveChatID picks the chat a message belongs to. An explicit chatID wins
// and becomes the user's active chat; otherwise the active chat is resumed,
// or a new one started. Anonymous callers get chatID back unchanged.
// Store failures degrade to no continuity rather than failing the chat.
func (s *ChatSessionService) ResolveChatID(ctx context.Context, user, chatID string) string {
	if user == "" {
		return chatID
	}
	if chatID != "" {
		s.remember(ctx, user, chatID)
		return chatID
	}

	active, err := s.repo.Active(ctx, user)
	if err != nil {
		s.logger.Warn("Active chat lookup failed", zap.String("user", user), zap.Error(err))
		return ""
	}
	if active != "" {
		s.remember(ctx, user, active)
		return active
	}

	chatID = s.newID()
	s.remember(ctx, user, chatID)
	return chatID
}

// remember refreshes the active chat, extending its ttl.
func (s *ChatSessionService) remember(ctx context.Context, user, chatID string) {
	if err := s.repo.SetActive(ctx, user, chatID); err != nil {
		s.logger.Warn("Failed to record active chat",
			zap.String("user", user),
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}
