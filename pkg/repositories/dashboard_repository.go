package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// DashboardRepository runs the fixed aggregation queries behind the admin dashboard.
type DashboardRepository interface {
	Summary(ctx context.Context, tr models.TimeRange) (*models.DashboardSummary, error)
	Timeseries(ctx context.Context, tr models.TimeRange) (*models.DashboardTimeseries, error)
	TokenUsage(ctx context.Context, tr models.TimeRange) (*models.TokenUsageStats, error)
	DailyComparison(ctx context.Context) (*models.DailyComparison, error)
}

type dashboardRepository struct {
	store DocumentStore
	names IndexNames
}

// NewDashboardRepository creates a DashboardRepository over store.
func NewDashboardRepository(store DocumentStore, names IndexNames) DashboardRepository {
	return &dashboardRepository{store: store, names: names}
}

var _ DashboardRepository = (*dashboardRepository)(nil)

// window returns the range lower bound, histogram interval and key format for tr.
func window(tr models.TimeRange) (gte, interval, format string) {
	switch tr {
	case models.TimeRange7d:
		return "now-7d", "1d", "yyyy-MM-dd"
	case models.TimeRange30d:
		return "now-30d", "1d", "yyyy-MM-dd"
	default:
		return "now-24h", "1h", "yyyy-MM-dd HH:mm"
	}
}

func rangeQuery(field, gte string) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{"range": map[string]any{field: map[string]any{"gte": gte, "lte": "now"}}},
			},
		},
	}
}

type valueAgg struct {
	Value *float64 `json:"value"`
}

func (v valueAgg) asFloat() float64 {
	if v.Value == nil {
		return 0
	}
	return *v.Value
}

func (v valueAgg) asInt() int64 {
	return int64(math.Round(v.asFloat()))
}

type percentilesAgg struct {
	Values map[string]*float64 `json:"values"`
}

func (p percentilesAgg) at(key string) float64 {
	if v := p.Values[key]; v != nil {
		return *v
	}
	return 0
}

type termsAgg struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

func (t termsAgg) named() []models.NamedCount {
	out := make([]models.NamedCount, 0, len(t.Buckets))
	for _, b := range t.Buckets {
		out = append(out, models.NamedCount{Name: b.Key, Count: b.DocCount})
	}
	return out
}

func (r *dashboardRepository) search(ctx context.Context, index string, query map[string]any, aggs any) error {
	if r.store == nil {
		return apperrors.ErrStoreUnavailable
	}
	result, err := r.store.Search(ctx, index, query)
	if err != nil {
		return fmt.Errorf("dashboard query on %s: %w", index, err)
	}
	if len(result.Aggregations) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Aggregations, aggs); err != nil {
		return fmt.Errorf("decode %s aggregations: %w", index, err)
	}
	return nil
}

func (r *dashboardRepository) Summary(ctx context.Context, tr models.TimeRange) (*models.DashboardSummary, error) {
	gte, _, _ := window(tr)
	query := map[string]any{
		"size":  0,
		"query": rangeQuery("@timestamp", gte),
		"aggs": map[string]any{
			"total_messages": map[string]any{"value_count": map[string]any{"field": "session_id"}},
			"active_users":   map[string]any{"cardinality": map[string]any{"field": "user_id"}},
			"sessions":       map[string]any{"cardinality": map[string]any{"field": "session_id"}},
			"response_time_stats": map[string]any{
				"percentiles": map[string]any{"field": "response_time_ms", "percents": []int{50, 95}},
			},
			"status_breakdown": map[string]any{"terms": map[string]any{"field": "status"}},
			"top_users":        map[string]any{"terms": map[string]any{"field": "user_id", "size": 5}},
			"top_models":       map[string]any{"terms": map[string]any{"field": "model", "size": 5}},
			"anonymous_messages": map[string]any{
				"filter": map[string]any{"term": map[string]any{"is_anonymous": true}},
			},
		},
	}

	var aggs struct {
		TotalMessages     valueAgg       `json:"total_messages"`
		ActiveUsers       valueAgg       `json:"active_users"`
		Sessions          valueAgg       `json:"sessions"`
		ResponseTimeStats percentilesAgg `json:"response_time_stats"`
		StatusBreakdown   termsAgg       `json:"status_breakdown"`
		TopUsers          termsAgg       `json:"top_users"`
		TopModels         termsAgg       `json:"top_models"`
		AnonymousMessages struct {
			DocCount int64 `json:"doc_count"`
		} `json:"anonymous_messages"`
	}
	if err := r.search(ctx, r.names.Activity, query, &aggs); err != nil {
		return nil, err
	}

	summary := &models.DashboardSummary{
		TotalMessages:     aggs.TotalMessages.asInt(),
		ActiveUsers:       aggs.ActiveUsers.asInt(),
		Sessions:          aggs.Sessions.asInt(),
		ResponseTimeP50Ms: aggs.ResponseTimeStats.at("50.0"),
		ResponseTimeP95Ms: aggs.ResponseTimeStats.at("95.0"),
		TopUsers:          aggs.TopUsers.named(),
		TopModels:         aggs.TopModels.named(),
		AnonymousMessages: aggs.AnonymousMessages.DocCount,
	}
	for _, b := range aggs.StatusBreakdown.Buckets {
		if b.Key == models.TelemetryStatusError {
			summary.ErrorCount += b.DocCount
		}
	}
	if summary.TotalMessages > 0 {
		summary.ErrorRatePct = round2(float64(summary.ErrorCount) / float64(summary.TotalMessages) * 100)
		summary.AnonymousRatePct = round2(float64(summary.AnonymousMessages) / float64(summary.TotalMessages) * 100)
	}
	return summary, nil
}

func (r *dashboardRepository) Timeseries(ctx context.Context, tr models.TimeRange) (*models.DashboardTimeseries, error) {
	gte, interval, format := window(tr)
	query := map[string]any{
		"size":  0,
		"query": rangeQuery("@timestamp", gte),
		"aggs": map[string]any{
			"timeline": map[string]any{
				"date_histogram": map[string]any{
					"field":           "@timestamp",
					"fixed_interval":  interval,
					"format":          format,
					"min_doc_count":   0,
					"extended_bounds": map[string]any{"min": gte, "max": "now"},
				},
				"aggs": map[string]any{
					"active_users": map[string]any{"cardinality": map[string]any{"field": "user_id"}},
					"p50": map[string]any{
						"percentiles": map[string]any{"field": "response_time_ms", "percents": []int{50}},
					},
					"error_count": map[string]any{
						"filter": map[string]any{"term": map[string]any{"status": models.TelemetryStatusError}},
					},
				},
			},
		},
	}

	var aggs struct {
		Timeline struct {
			Buckets []struct {
				KeyAsString string         `json:"key_as_string"`
				DocCount    int64          `json:"doc_count"`
				ActiveUsers valueAgg       `json:"active_users"`
				P50         percentilesAgg `json:"p50"`
				ErrorCount  struct {
					DocCount int64 `json:"doc_count"`
				} `json:"error_count"`
			} `json:"buckets"`
		} `json:"timeline"`
	}
	if err := r.search(ctx, r.names.Activity, query, &aggs); err != nil {
		return nil, err
	}

	series := &models.DashboardTimeseries{Points: make([]models.TimeseriesPoint, 0, len(aggs.Timeline.Buckets))}
	for _, b := range aggs.Timeline.Buckets {
		series.Points = append(series.Points, models.TimeseriesPoint{
			Timestamp:   b.KeyAsString,
			Count:       b.DocCount,
			ActiveUsers: b.ActiveUsers.asInt(),
			P50:         b.P50.at("50.0"),
			Errors:      b.ErrorCount.DocCount,
		})
	}
	return series, nil
}

func (r *dashboardRepository) TokenUsage(ctx context.Context, tr models.TimeRange) (*models.TokenUsageStats, error) {
	gte, _, _ := window(tr)
	query := map[string]any{
		"size":  0,
		"query": rangeQuery("timestamp", gte),
		"aggs": map[string]any{
			"total_tokens":            map[string]any{"sum": map[string]any{"field": "total_tokens"}},
			"total_prompt_tokens":     map[string]any{"sum": map[string]any{"field": "prompt_tokens"}},
			"total_completion_tokens": map[string]any{"sum": map[string]any{"field": "completion_tokens"}},
			"avg_tokens_per_request":  map[string]any{"avg": map[string]any{"field": "total_tokens"}},
			"total_requests":          map[string]any{"value_count": map[string]any{"field": "request_id"}},
			"estimated_requests": map[string]any{
				"filter": map[string]any{"term": map[string]any{"estimated": true}},
			},
			"tokens_by_model": map[string]any{
				"terms": map[string]any{"field": "model", "size": 10},
				"aggs": map[string]any{
					"total_tokens": map[string]any{"sum": map[string]any{"field": "total_tokens"}},
					"avg_tokens":   map[string]any{"avg": map[string]any{"field": "total_tokens"}},
				},
			},
			"tokens_by_provider": map[string]any{
				"terms": map[string]any{"field": "provider", "size": 10},
				"aggs": map[string]any{
					"total_tokens": map[string]any{"sum": map[string]any{"field": "total_tokens"}},
				},
			},
		},
	}

	var aggs struct {
		TotalTokens           valueAgg `json:"total_tokens"`
		TotalPromptTokens     valueAgg `json:"total_prompt_tokens"`
		TotalCompletionTokens valueAgg `json:"total_completion_tokens"`
		AvgTokensPerRequest   valueAgg `json:"avg_tokens_per_request"`
		TotalRequests         valueAgg `json:"total_requests"`
		EstimatedRequests     struct {
			DocCount int64 `json:"doc_count"`
		} `json:"estimated_requests"`
		TokensByModel struct {
			Buckets []struct {
				Key         string   `json:"key"`
				DocCount    int64    `json:"doc_count"`
				TotalTokens valueAgg `json:"total_tokens"`
				AvgTokens   valueAgg `json:"avg_tokens"`
			} `json:"buckets"`
		} `json:"tokens_by_model"`
		TokensByProvider struct {
			Buckets []struct {
				Key         string   `json:"key"`
				DocCount    int64    `json:"doc_count"`
				TotalTokens valueAgg `json:"total_tokens"`
			} `json:"buckets"`
		} `json:"tokens_by_provider"`
	}
	if err := r.search(ctx, r.names.Usage, query, &aggs); err != nil {
		return nil, err
	}

	stats := &models.TokenUsageStats{
		TotalTokens:           aggs.TotalTokens.asInt(),
		TotalPromptTokens:     aggs.TotalPromptTokens.asInt(),
		TotalCompletionTokens: aggs.TotalCompletionTokens.asInt(),
		AvgTokensPerRequest:   round1(aggs.AvgTokensPerRequest.asFloat()),
		TotalRequests:         aggs.TotalRequests.asInt(),
		EstimatedRequests:     aggs.EstimatedRequests.DocCount,
		TokensByModel:         make([]models.ModelTokenUsage, 0, len(aggs.TokensByModel.Buckets)),
		TokensByProvider:      make([]models.ProviderTokenUsage, 0, len(aggs.TokensByProvider.Buckets)),
	}
	for _, b := range aggs.TokensByModel.Buckets {
		stats.TokensByModel = append(stats.TokensByModel, models.ModelTokenUsage{
			Model:       b.Key,
			TotalTokens: b.TotalTokens.asInt(),
			AvgTokens:   round1(b.AvgTokens.asFloat()),
			Requests:    b.DocCount,
		})
	}
	for _, b := range aggs.TokensByProvider.Buckets {
		stats.TokensByProvider = append(stats.TokensByProvider, models.ProviderTokenUsage{
			Provider:    b.Key,
			TotalTokens: b.TotalTokens.asInt(),
			Requests:    b.DocCount,
		})
	}
	return stats, nil
}

type dayAgg struct {
	Messages   valueAgg `json:"messages"`
	Users      valueAgg `json:"users"`
	AvgLatency valueAgg `json:"avg_latency"`
	Hours      struct {
		Buckets []struct {
			KeyAsString string   `json:"key_as_string"`
			DocCount    int64    `json:"doc_count"`
			Users       valueAgg `json:"users"`
		} `json:"buckets"`
	} `json:"hours"`
}

// activity picks the busiest hour; ties go to the earlier hour.
func (d dayAgg) activity() models.DayActivity {
	day := models.DayActivity{
		Messages:     d.Messages.asInt(),
		Users:        d.Users.asInt(),
		AvgLatencyMs: round1(d.AvgLatency.asFloat()),
	}
	for _, b := range d.Hours.Buckets {
		if b.DocCount > day.PeakHourMessages {
			day.PeakHour = b.KeyAsString
			day.PeakHourMessages = b.DocCount
			day.PeakHourUsers = b.Users.asInt()
		}
	}
	return day
}

func dayFilter(gte, lt string) map[string]any {
	return map[string]any{
		"filter": map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": gte, "lt": lt}}},
		"aggs": map[string]any{
			"messages":    map[string]any{"value_count": map[string]any{"field": "session_id"}},
			"users":       map[string]any{"cardinality": map[string]any{"field": "user_id"}},
			"avg_latency": map[string]any{"avg": map[string]any{"field": "response_time_ms"}},
			"hours": map[string]any{
				"date_histogram": map[string]any{
					"field":          "@timestamp",
					"fixed_interval": "1h",
					"format":         "HH:00",
					"min_doc_count":  1,
				},
				"aggs": map[string]any{
					"users": map[string]any{"cardinality": map[string]any{"field": "user_id"}},
				},
			},
		},
	}
}

// DailyComparison aggregates today and yesterday (UTC calendar days) in one query.
func (r *dashboardRepository) DailyComparison(ctx context.Context) (*models.DailyComparison, error) {
	query := map[string]any{
		"size":  0,
		"query": rangeQuery("@timestamp", "now-1d/d"),
		"aggs": map[string]any{
			"today":     dayFilter("now/d", "now+1d/d"),
			"yesterday": dayFilter("now-1d/d", "now/d"),
		},
	}

	var aggs struct {
		Today     dayAgg `json:"today"`
		Yesterday dayAgg `json:"yesterday"`
	}
	if err := r.search(ctx, r.names.Activity, query, &aggs); err != nil {
		return nil, err
	}
	return &models.DailyComparison{Today: aggs.Today.activity(), Yesterday: aggs.Yesterday.activity()}, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
