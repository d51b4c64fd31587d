package repositories

import (
	"context"

	"github.com/ekaya-inc/chat-gateway/pkg/database"
)

// DocumentStore is the subset of the OpenSearch client used by repositories.
type DocumentStore interface {
	Index(ctx context.Context, index, id string, doc any) error
	Get(ctx context.Context, index, id string, out any) (bool, error)
	Update(ctx context.Context, index, id string, doc, upsert map[string]any) error
	Search(ctx context.Context, index string, query map[string]any) (*database.SearchResult, error)
}

var _ DocumentStore = (*database.OpenSearch)(nil)

// IndexNames are the OpenSearch indexes the repositories write to.
type IndexNames struct {
	Summaries string // chat_summaries
	Usage     string // token_usage
	Activity  string // ai_chat_logs
}

// IndexMappings returns the explicit mappings for each index so that term
// queries and aggregations work on keyword fields without a .keyword suffix.
func IndexMappings(names IndexNames) map[string]map[string]any {
	keyword := map[string]any{"type": "keyword"}
	date := map[string]any{"type": "date"}
	integer := map[string]any{"type": "integer"}
	long := map[string]any{"type": "long"}
	text := map[string]any{"type": "text"}
	boolean := map[string]any{"type": "boolean"}

	return map[string]map[string]any{
		names.Summaries: {"properties": map[string]any{
			"chat_id":       keyword,
			"user_identity": keyword,
			"title":         text,
			"summary":       text,
			"topics":        keyword,
			"message_count": integer,
			"first_seen_at": date,
			"last_seen_at":  date,
		}},
		names.Usage: {"properties": map[string]any{
			"request_id":        keyword,
			"sequence":          long,
			"chat_id":           keyword,
			"user_identity":     keyword,
			"role":              keyword,
			"model":             keyword,
			"provider":          keyword,
			"endpoint":          keyword,
			"status":            keyword,
			"prompt_tokens":     integer,
			"completion_tokens": integer,
			"total_tokens":      integer,
			"estimated":         boolean,
			"latency_ms":        long,
			"timestamp":         date,
		}},
		names.Activity: {"properties": map[string]any{
			"request_id":       keyword,
			"sequence":         long,
			"session_id":       keyword,
			"user_id":          keyword,
			"role":             keyword,
			"model":            keyword,
			"status":           keyword,
			"environment":      keyword,
			"content_length":   integer,
			"content_snippet":  text,
			"response_time_ms": long,
			"is_anonymous":     boolean,
			"error_message":    text,
			"@timestamp":       date,
		}},
	}
}
