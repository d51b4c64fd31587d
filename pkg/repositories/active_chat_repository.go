package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeChatKeyPrefix = "chat:active:"

// ActiveChatRepository remembers the chat each user is currently in.
type ActiveChatRepository interface {
	// Active returns the user's active chat id, or "" when none is recorded.
	Active(ctx context.Context, user string) (string, error)
	// SetActive records chatID as the user's active chat.
	SetActive(ctx context.Context, user, chatID string) error
}

type redisActiveChatRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisActiveChatRepository creates an ActiveChatRepository backed by
// Redis. Each SetActive refreshes the key's ttl; zero keeps keys forever.
func NewRedisActiveChatRepository(client *redis.Client, ttl time.Duration) ActiveChatRepository {
	return &redisActiveChatRepository{client: client, ttl: ttl}
}

var _ ActiveChatRepository = (*redisActiveChatRepository)(nil)

func (r *redisActiveChatRepository) Active(ctx context.Context, user string) (string, error) {
	chatID, err := r.client.Get(ctx, activeChatKeyPrefix+user).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active chat for %s: %w", user, err)
	}
	return chatID, nil
}

func (r *redisActiveChatRepository) SetActive(ctx context.Context, user, chatID string) error {
	if err := r.client.Set(ctx, activeChatKeyPrefix+user, chatID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set active chat for %s: %w", user, err)
	}
	return nil
}

// MemoryActiveChatRepository keeps active chats in process. Entries live
// until replaced or the process exits.
type MemoryActiveChatRepository struct {
	mu     sync.RWMutex
	active map[string]string
}

// NewMemoryActiveChatRepository creates an in-process ActiveChatRepository.
func NewMemoryActiveChatRepository() *MemoryActiveChatRepository {
	return &MemoryActiveChatRepository{active: make(map[string]string)}
}

var _ ActiveChatRepository = (*MemoryActiveChatRepository)(nil)

func (r *MemoryActiveChatRepository) Active(_ context.Context, user string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[user], nil
}

func (r *MemoryActiveChatRepository) SetActive(_ context.Context, user, chatID string) error {
	r.mu.Lock()
	r.active[user] = chatID
	r.mu.Unlock()
	return nil
}
