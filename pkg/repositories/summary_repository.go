package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/database"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// SummaryRepository provides data access for conversation summaries.
type SummaryRepository interface {
	// Get returns the summary for chatID, or nil if none exists.
	Get(ctx context.Context, chatID string) (*models.ConversationSummary, error)
	// LatestForUser returns the most recently seen summary for a user, or nil.
	LatestForUser(ctx context.Context, userIdentity string) (*models.ConversationSummary, error)
	// Upsert merges fields into the summary, creating it if absent.
	Upsert(ctx context.Context, chatID string, fields models.SummaryFields) error
	// Touch records activity without re-summarizing.
	Touch(ctx context.Context, chatID, userIdentity string, messageCount int) error
}

type summaryRepository struct {
	store DocumentStore
	index string
	now   func() time.Time
}

// NewSummaryRepository creates a SummaryRepository over store.
// A nil store yields apperrors.ErrStoreUnavailable from every call.
func NewSummaryRepository(store DocumentStore, index string) SummaryRepository {
	return &summaryRepository{store: store, index: index, now: time.Now}
}

var _ SummaryRepository = (*summaryRepository)(nil)

func (r *summaryRepository) available() error {
	if r.store == nil {
		return apperrors.ErrStoreUnavailable
	}
	return nil
}

func (r *summaryRepository) Get(ctx context.Context, chatID string) (*models.ConversationSummary, error) {
	if err := r.available(); err != nil {
		return nil, err
	}

	var summary models.ConversationSummary
	found, err := r.store.Get(ctx, r.index, chatID, &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary %s: %w", chatID, err)
	}
	if !found {
		return nil, nil
	}
	if summary.ID == "" {
		summary.ID = chatID
	}
	return &summary, nil
}

func (r *summaryRepository) LatestForUser(ctx context.Context, userIdentity string) (*models.ConversationSummary, error) {
	if err := r.available(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userIdentity) == "" {
		return nil, nil
	}

	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"user_identity": userIdentity}},
				},
			},
		},
		"sort": []any{
			map[string]any{"last_seen_at": map[string]any{"order": "desc"}},
		},
	}

	result, err := r.store.Search(ctx, r.index, query)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest summary: %w", err)
	}
	if len(result.Hits.Hits) == 0 {
		return nil, nil
	}

	hit := result.Hits.Hits[0]
	var summary models.ConversationSummary
	if err := json.Unmarshal(hit.Source, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", hit.ID, err)
	}
	if summary.ID == "" {
		summary.ID = hit.ID
	}
	return &summary, nil
}

func (r *summaryRepository) Upsert(ctx context.Context, chatID string, fields models.SummaryFields) error {
	if err := r.available(); err != nil {
		return err
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat_id is required", apperrors.ErrInvalidRequest)
	}

	now := r.now()
	if fields.LastSeenAt == nil {
		fields.LastSeenAt = &now
	}

	doc := fields.Doc()
	// first_seen_at is only written when the document is created.
	delete(doc, "first_seen_at")

	firstSeen := now
	if fields.FirstSeenAt != nil {
		firstSeen = *fields.FirstSeenAt
	}
	upsert := createDoc(chatID, doc, firstSeen)

	if err := r.store.Update(ctx, r.index, chatID, doc, upsert); err != nil {
		return fmt.Errorf("failed to upsert summary %s: %w", chatID, err)
	}
	return nil
}

func (r *summaryRepository) Touch(ctx context.Context, chatID, userIdentity string, messageCount int) error {
	fields := models.SummaryFields{MessageCount: &messageCount}
	if userIdentity != "" {
		fields.UserIdentity = &userIdentity
	}
	return r.Upsert(ctx, chatID, fields)
}

// createDoc is the initial document for an upsert: the partial doc plus the
// immutable id and creation time.
func createDoc(chatID string, doc map[string]any, firstSeen time.Time) map[string]any {
	upsert := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		upsert[k] = v
	}
	upsert["chat_id"] = chatID
	upsert["first_seen_at"] = firstSeen.UTC().Format(time.RFC3339)
	return upsert
}
