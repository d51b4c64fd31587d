package models

// TimeRange is a dashboard window.
type TimeRange string

// Supported dashboard windows.
const (
	TimeRange24h TimeRange = "24h"
	TimeRange7d  TimeRange = "7d"
	TimeRange30d TimeRange = "30d"
)

// IsValid reports whether r is a supported window.
func (r TimeRange) IsValid() bool {
	return r == TimeRange24h || r == TimeRange7d || r == TimeRange30d
}

// NamedCount is a terms-aggregation bucket.
type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// DashboardSummary aggregates chat activity over a window.
type DashboardSummary struct {
	TotalMessages     int64        `json:"total_messages"`
	ActiveUsers       int64        `json:"active_users"`
	Sessions          int64        `json:"sessions"`
	ResponseTimeP50Ms float64      `json:"response_time_p50_ms"`
	ResponseTimeP95Ms float64      `json:"response_time_p95_ms"`
	ErrorCount        int64        `json:"error_count"`
	ErrorRatePct      float64      `json:"error_rate_pct"`
	AnonymousMessages int64        `json:"anonymous_messages"`
	AnonymousRatePct  float64      `json:"anonymous_rate_pct"`
	TopUsers          []NamedCount `json:"top_users"`
	TopModels         []NamedCount `json:"top_models"`
}

// TimeseriesPoint is one date-histogram bucket.
type TimeseriesPoint struct {
	Timestamp   string  `json:"timestamp"`
	Count       int64   `json:"count"`
	ActiveUsers int64   `json:"active_users"`
	P50         float64 `json:"p50"`
	Errors      int64   `json:"errors"`
}

// DashboardTimeseries is message volume, latency and errors over time.
type DashboardTimeseries struct {
	Points []TimeseriesPoint `json:"messages_over_time"`
}

// ModelTokenUsage is token usage for one model.
type ModelTokenUsage struct {
	Model       string  `json:"model"`
	TotalTokens int64   `json:"total_tokens"`
	AvgTokens   float64 `json:"avg_tokens"`
	Requests    int64   `json:"requests"`
}

// ProviderTokenUsage is token usage for one upstream provider.
type ProviderTokenUsage struct {
	Provider    string `json:"provider"`
	TotalTokens int64  `json:"total_tokens"`
	Requests    int64  `json:"requests"`
}

// TokenUsageStats aggregates token usage over a window.
type TokenUsageStats struct {
	TotalTokens           int64                `json:"total_tokens"`
	TotalPromptTokens     int64                `json:"total_prompt_tokens"`
	TotalCompletionTokens int64                `json:"total_completion_tokens"`
	AvgTokensPerRequest   float64              `json:"avg_tokens_per_request"`
	TotalRequests         int64                `json:"total_requests"`
	EstimatedRequests     int64                `json:"estimated_requests"`
	TokensByModel         []ModelTokenUsage    `json:"tokens_by_model"`
	TokensByProvider      []ProviderTokenUsage `json:"tokens_by_provider"`
}

// DayActivity is chat activity for one calendar day (UTC).
type DayActivity struct {
	Messages     int64
	Users        int64
	AvgLatencyMs float64
	// PeakHour is "HH:00" of the busiest hour, empty when the day has no messages.
	PeakHour         string
	PeakHourMessages int64
	PeakHourUsers    int64
}

// DailyComparison pairs today's activity with yesterday's.
type DailyComparison struct {
	Today     DayActivity
	Yesterday DayActivity
}

// Insight badge colours.
const (
	BadgeGray   = "gray"
	BadgeGreen  = "green"
	BadgeYellow = "yellow"
	BadgeRed    = "red"
	BadgeBlue   = "blue"
)

// InsightBadges colour the three insight cards.
type InsightBadges struct {
	Usage   string `json:"usage"`
	Latency string `json:"latency"`
	Peak    string `json:"peak"`
}

// DashboardInsights compares today's activity with yesterday's.
type DashboardInsights struct {
	TotalMessagesToday     int64         `json:"total_messages_today"`
	TotalMessagesYesterday int64         `json:"total_messages_yesterday"`
	UniqueUsersToday       int64         `json:"unique_users_today"`
	UniqueUsersYesterday   int64         `json:"unique_users_yesterday"`
	AvgLatencyTodayMs      float64       `json:"avg_latency_today_ms"`
	AvgLatencyYesterdayMs  float64       `json:"avg_latency_yesterday_ms"`
	MsgChangePct           float64       `json:"msg_change_pct"`
	UserChangePct          float64       `json:"user_change_pct"`
	PeakHourToday          string        `json:"peak_hour_today"`
	PeakHourUsers          int64         `json:"peak_hour_users"`
	PeakHourMessages       int64         `json:"peak_hour_messages"`
	LatencyAnomaly         bool          `json:"latency_anomaly"`
	LatencyInsightText     string        `json:"latency_insight_text"`
	UsageInsightText       string        `json:"usage_insight_text"`
	PeakInsightText        string        `json:"peak_insight_text"`
	Badges                 InsightBadges `json:"badges"`
}

// EmptyInsights is the no-data insights payload.
func EmptyInsights() *DashboardInsights {
	return &DashboardInsights{
		PeakHourToday:      "N/A",
		LatencyInsightText: "No data available",
		UsageInsightText:   "No data available",
		PeakInsightText:    "No data available",
		Badges:             InsightBadges{Usage: BadgeGray, Latency: BadgeGray, Peak: BadgeGray},
	}
}
