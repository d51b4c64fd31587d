package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
)

const maxSharedMessages = 500

// ShareService publishes read-only conversation snapshots under short-lived links.
type ShareService struct {
	repo   repositories.ShareRepository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewShareService creates a ShareService. ttl <= 0 uses seven days.
func NewShareService(repo repositories.ShareRepository, ttl time.Duration, logger *zap.Logger) *ShareService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &ShareService{repo: repo, ttl: ttl, logger: logger.Named("share"), now: time.Now}
}

// Create stores a snapshot and returns it with its id and expiry.
func (s *ShareService) Create(ctx context.Context, title string, messages []models.ConversationTurn) (*models.SharedChat, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: messages are required", apperrors.ErrInvalidRequest)
	}
	if len(messages) > maxSharedMessages {
		return nil, fmt.Errorf("%w: at most %d messages can be shared", apperrors.ErrInvalidRequest, maxSharedMessages)
	}
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: messages[%d]: %v", apperrors.ErrInvalidRequest, i, err)
		}
	}

	now := s.now().UTC()
	share := &models.SharedChat{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		Title:     strings.TrimSpace(title),
		Messages:  messages,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Save(ctx, share); err != nil {
		return nil, err
	}

	s.logger.Info("Created shared chat",
		zap.String("id", share.ID),
		zap.Int("messages", len(messages)),
		zap.Time("expires_at", share.ExpiresAt))
	return share, nil
}

// Get returns a shared chat, or apperrors.ErrNotFound.
func (s *ShareService) Get(ctx context.Context, id string) (*models.SharedChat, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}
