package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// Sharer publishes and reads shared conversations.
type Sharer interface {
	Create(ctx context.Context, title string, messages []models.ConversationTurn) (*models.SharedChat, error)
	Get(ctx context.Context, id string) (*models.SharedChat, error)
}

var _ Sharer = (*services.ShareService)(nil)

// CreateShareRequest is the request body for POST /share.
type CreateShareRequest struct {
	Title    string                    `json:"title"`
	Messages []models.ConversationTurn `json:"messages"`
}

// CreateShareResponse is the data of a created share.
type CreateShareResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ShareHandler handles shared conversation links.
type ShareHandler struct {
	shares  Sharer
	baseURL string
	logger  *zap.Logger
}

// NewShareHandler creates a new share handler. baseURL prefixes returned links.
func NewShareHandler(shares Sharer, baseURL string, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{
		shares:  shares,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// RegisterRoutes registers the share handler's routes on the given mux.
func (h *ShareHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /share", h.Create)
	mux.HandleFunc("GET /share/{id}", h.Get)
}

// Create handles POST /share.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateShareRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	share, err := h.shares.Create(r.Context(), req.Title, req.Messages)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := CreateShareResponse{
		ID:        share.ID,
		URL:       h.baseURL + "/share/" + share.ID,
		ExpiresAt: share.ExpiresAt,
	}
	if err := WriteSuccess(w, http.StatusCreated, resp); err != nil {
		h.logger.Error("Failed to encode share response", zap.Error(err))
	}
}

// Get handles GET /share/{id}.
func (h *ShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	share, err := h.shares.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, share); err != nil {
		h.logger.Error("Failed to encode shared chat", zap.Error(err))
	}
}
