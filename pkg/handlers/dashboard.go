package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// DashboardQueries serves the admin dashboard aggregates.
type DashboardQueries interface {
	Summary(ctx context.Context, tr models.TimeRange) (*models.DashboardSummary, error)
	Timeseries(ctx context.Context, tr models.TimeRange) (*models.DashboardTimeseries, error)
	TokenUsage(ctx context.Context, tr models.TimeRange) (*models.TokenUsageStats, error)
	Insights(ctx context.Context) (*models.DashboardInsights, error)
}

var _ DashboardQueries = (*services.DashboardService)(nil)

// DashboardHandler handles dashboard API requests.
type DashboardHandler struct {
	dashboard DashboardQueries
	logger    *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboard DashboardQueries, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard/summary", h.Summary)
	mux.HandleFunc("GET /api/dashboard/timeseries", h.Timeseries)
	mux.HandleFunc("GET /api/dashboard/token-usage", h.TokenUsage)
	mux.HandleFunc("GET /api/dashboard/insights", h.Insights)
}

// Summary handles GET /api/dashboard/summary.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	serveDashboard(w, r, h.logger, h.dashboard.Summary)
}

// Timeseries handles GET /api/dashboard/timeseries.
func (h *DashboardHandler) Timeseries(w http.ResponseWriter, r *http.Request) {
	serveDashboard(w, r, h.logger, h.dashboard.Timeseries)
}

// TokenUsage handles GET /api/dashboard/token-usage.
func (h *DashboardHandler) TokenUsage(w http.ResponseWriter, r *http.Request) {
	serveDashboard(w, r, h.logger, h.dashboard.TokenUsage)
}

// Insights handles GET /api/dashboard/insights. It takes no time range.
func (h *DashboardHandler) Insights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.dashboard.Insights(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, insights); err != nil {
		h.logger.Error("Failed to encode dashboard response", zap.Error(err))
	}
}

func serveDashboard[T any](w http.ResponseWriter, r *http.Request, logger *zap.Logger, query func(context.Context, models.TimeRange) (T, error)) {
	tr, ok := ParseTimeRange(w, r, logger)
	if !ok {
		return
	}
	result, err := query(r.Context(), tr)
	if err != nil {
		WriteError(w, err, logger)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, result); err != nil {
		logger.Error("Failed to encode dashboard response", zap.Error(err))
	}
}
