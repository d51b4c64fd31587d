package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

const shareKeyPrefix = "chat:share:"

// ShareRepository stores shared chat snapshots until they expire.
type ShareRepository interface {
	// Save stores share until share.ExpiresAt.
	Save(ctx context.Context, share *models.SharedChat) error
	// Get returns the share, or apperrors.ErrNotFound if missing or expired.
	Get(ctx context.Context, id string) (*models.SharedChat, error)
	// Close releases background resources.
	Close() error
}

// redisShareRepository keeps shares in Redis with a key TTL.
type redisShareRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisShareRepository creates a ShareRepository backed by Redis.
func NewRedisShareRepository(client *redis.Client) ShareRepository {
	return &redisShareRepository{client: client, now: time.Now}
}

var _ ShareRepository = (*redisShareRepository)(nil)

func (r *redisShareRepository) Save(ctx context.Context, share *models.SharedChat) error {
	ttl := share.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: share already expired", apperrors.ErrInvalidRequest)
	}

	data, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("failed to marshal share: %w", err)
	}
	if err := r.client.Set(ctx, shareKeyPrefix+share.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save share %s: %w", share.ID, err)
	}
	return nil
}

func (r *redisShareRepository) Get(ctx context.Context, id string) (*models.SharedChat, error) {
	data, err := r.client.Get(ctx, shareKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share %s: %w", id, err)
	}

	var share models.SharedChat
	if err := json.Unmarshal(data, &share); err != nil {
		return nil, fmt.Errorf("failed to decode share %s: %w", id, err)
	}
	return &share, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *redisShareRepository) Close() error {
	return nil
}

// MemoryShareRepository keeps shares in process, evicting expired entries
// on read and on a periodic sweep.
type MemoryShareRepository struct {
	mu     sync.RWMutex
	shares map[string]*models.SharedChat
	now    func() time.Time
	cron   *rcron.Cron
	logger *zap.Logger
}

// NewMemoryShareRepository creates an in-process ShareRepository.
// sweepSpec is a cron spec such as "@every 5m"; empty disables the sweep.
func NewMemoryShareRepository(sweepSpec string, logger *zap.Logger) (*MemoryShareRepository, error) {
	r := &MemoryShareRepository{
		shares: make(map[string]*models.SharedChat),
		now:    time.Now,
		logger: logger.Named("share-store"),
	}

	if sweepSpec != "" {
		r.cron = rcron.New()
		if _, err := r.cron.AddFunc(sweepSpec, func() { r.Sweep() }); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", sweepSpec, err)
		}
		r.cron.Start()
	}
	return r, nil
}

var _ ShareRepository = (*MemoryShareRepository)(nil)

func (r *MemoryShareRepository) Save(_ context.Context, share *models.SharedChat) error {
	if share.Expired(r.now()) {
		return fmt.Errorf("%w: share already expired", apperrors.ErrInvalidRequest)
	}
	copied := *share
	r.mu.Lock()
	r.shares[share.ID] = &copied
	r.mu.Unlock()
	return nil
}

func (r *MemoryShareRepository) Get(_ context.Context, id string) (*models.SharedChat, error) {
	r.mu.RLock()
	share, ok := r.shares[id]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrNotFound
	}
	now := r.now()
	if share.Expired(now) {
		// Re-read under the write lock: a Save may have replaced the entry.
		r.mu.Lock()
		share, ok = r.shares[id]
		if ok && share.Expired(now) {
			delete(r.shares, id)
			ok = false
		}
		r.mu.Unlock()
		if !ok {
			return nil, apperrors.ErrNotFound
		}
	}
	copied := *share
	return &copied, nil
}

// Sweep removes expired shares and returns how many were removed.
func (r *MemoryShareRepository) Sweep() int {
	now := r.now()
	removed := 0

	r.mu.Lock()
	for id, share := range r.shares {
		if share.Expired(now) {
			delete(r.shares, id)
			removed++
		}
	}
	remaining := len(r.shares)
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Debug("Swept expired shares",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
	return removed
}

// Len returns the number of stored shares, including expired ones not yet swept.
func (r *MemoryShareRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shares)
}

// Close stops the sweep schedule and waits for a running sweep.
func (r *MemoryShareRepository) Close() error {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	return nil
}
