package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
)

// DashboardService serves admin dashboard aggregates. Query failures return
// zero-valued results; only a missing store is reported as an error.
type DashboardService struct {
	repo      repositories.DashboardRepository
	available bool
	logger    *zap.Logger
}

// NewDashboardService creates a DashboardService. available is false when no
// document store is configured.
func NewDashboardService(repo repositories.DashboardRepository, available bool, logger *zap.Logger) *DashboardService {
	return &DashboardService{repo: repo, available: available, logger: logger.Named("dashboard")}
}

func (s *DashboardService) check(tr models.TimeRange) error {
	if !s.available {
		return apperrors.ErrStoreUnavailable
	}
	if !tr.IsValid() {
		return apperrors.ErrInvalidRequest
	}
	return nil
}

func (s *DashboardService) degraded(query string, err error) {
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return
	}
	s.logger.Warn("Dashboard query failed, returning zeros", zap.String("query", query), zap.Error(err))
}

// Summary returns message, user and latency aggregates for tr.
func (s *DashboardService) Summary(ctx context.Context, tr models.TimeRange) (*models.DashboardSummary, error) {
	if err := s.check(tr); err != nil {
		return nil, err
	}
	summary, err := s.repo.Summary(ctx, tr)
	if err != nil {
		s.degraded("summary", err)
		return &models.DashboardSummary{TopUsers: []models.NamedCount{}, TopModels: []models.NamedCount{}}, nil
	}
	return summary, nil
}

// Timeseries returns bucketed activity for tr.
func (s *DashboardService) Timeseries(ctx context.Context, tr models.TimeRange) (*models.DashboardTimeseries, error) {
	if err := s.check(tr); err != nil {
		return nil, err
	}
	series, err := s.repo.Timeseries(ctx, tr)
	if err != nil {
		s.degraded("timeseries", err)
		return &models.DashboardTimeseries{Points: []models.TimeseriesPoint{}}, nil
	}
	return series, nil
}

// TokenUsage returns token usage aggregates for tr.
func (s *DashboardService) TokenUsage(ctx context.Context, tr models.TimeRange) (*models.TokenUsageStats, error) {
	if err := s.check(tr); err != nil {
		return nil, err
	}
	stats, err := s.repo.TokenUsage(ctx, tr)
	if err != nil {
		s.degraded("token usage", err)
		return &models.TokenUsageStats{TokensByModel: []models.ModelTokenUsage{}}, nil
	}
	return stats, nil
}

// latencyAnomalyFactor flags today's average latency when it exceeds
// yesterday's by this factor.
const latencyAnomalyFactor = 1.5

// Insights compares today's activity with yesterday's and derives the
// insight texts and badge colours.
func (s *DashboardService) Insights(ctx context.Context) (*models.DashboardInsights, error) {
	if !s.available {
		return nil, apperrors.ErrStoreUnavailable
	}
	days, err := s.repo.DailyComparison(ctx)
	if err != nil {
		s.degraded("insights", err)
		return models.EmptyInsights(), nil
	}
	return buildInsights(days), nil
}

func buildInsights(days *models.DailyComparison) *models.DashboardInsights {
	today, yesterday := days.Today, days.Yesterday
	out := models.EmptyInsights()
	out.TotalMessagesToday = today.Messages
	out.TotalMessagesYesterday = yesterday.Messages
	out.UniqueUsersToday = today.Users
	out.UniqueUsersYesterday = yesterday.Users
	out.AvgLatencyTodayMs = today.AvgLatencyMs
	out.AvgLatencyYesterdayMs = yesterday.AvgLatencyMs
	out.MsgChangePct = changePct(today.Messages, yesterday.Messages)
	out.UserChangePct = changePct(today.Users, yesterday.Users)

	if today.Messages > 0 || yesterday.Messages > 0 {
		out.UsageInsightText, out.Badges.Usage = usageInsight(today, yesterday, out.MsgChangePct)
	}

	if today.AvgLatencyMs > 0 {
		out.LatencyAnomaly = yesterday.AvgLatencyMs > 0 && today.AvgLatencyMs > yesterday.AvgLatencyMs*latencyAnomalyFactor
		switch {
		case out.LatencyAnomaly:
			out.Badges.Latency = models.BadgeRed
			out.LatencyInsightText = fmt.Sprintf("Average latency %.0f ms is %.1f%% above yesterday (%.0f ms)",
				today.AvgLatencyMs, (today.AvgLatencyMs/yesterday.AvgLatencyMs-1)*100, yesterday.AvgLatencyMs)
		case yesterday.AvgLatencyMs > 0:
			out.Badges.Latency = models.BadgeGreen
			out.LatencyInsightText = fmt.Sprintf("Average latency %.0f ms (yesterday %.0f ms)", today.AvgLatencyMs, yesterday.AvgLatencyMs)
		default:
			out.Badges.Latency = models.BadgeGreen
			out.LatencyInsightText = fmt.Sprintf("Average latency %.0f ms today", today.AvgLatencyMs)
		}
	}

	if today.PeakHour != "" {
		out.PeakHourToday = today.PeakHour
		out.PeakHourMessages = today.PeakHourMessages
		out.PeakHourUsers = today.PeakHourUsers
		out.PeakInsightText = fmt.Sprintf("Busiest hour %s with %d messages from %d users", today.PeakHour, today.PeakHourMessages, today.PeakHourUsers)
		out.Badges.Peak = models.BadgeBlue
	}
	return out
}

func usageInsight(today, yesterday models.DayActivity, change float64) (text, badge string) {
	switch {
	case yesterday.Messages == 0:
		return fmt.Sprintf("%d messages from %d users today, no activity yesterday", today.Messages, today.Users), models.BadgeGreen
	case change > 0:
		text = fmt.Sprintf("Messages up %.1f%% vs yesterday (%d vs %d)", change, today.Messages, yesterday.Messages)
	case change < 0:
		text = fmt.Sprintf("Messages down %.1f%% vs yesterday (%d vs %d)", -change, today.Messages, yesterday.Messages)
	default:
		text = fmt.Sprintf("Messages flat vs yesterday (%d)", today.Messages)
	}
	switch {
	case change >= 0:
		badge = models.BadgeGreen
	case change > -25:
		badge = models.BadgeYellow
	default:
		badge = models.BadgeRed
	}
	return text, badge
}

// changePct is the day-over-day change, 100 when yesterday had nothing.
func changePct(today, yesterday int64) float64 {
	if yesterday == 0 {
		if today > 0 {
			return 100
		}
		return 0
	}
	return math.Round(float64(today-yesterday)/float64(yesterday)*1000) / 10
}
