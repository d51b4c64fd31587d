package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// LinkPreviewer extracts Open Graph tags from a page.
type LinkPreviewer interface {
	Extract(ctx context.Context, rawURL string) (map[string]string, error)
}

var _ LinkPreviewer = (*services.OpenGraphService)(nil)

// ExtractRequest is the request body for POST /extract.
type ExtractRequest struct {
	URL string `json:"url"`
}

// ExtractHandler handles link preview extraction.
type ExtractHandler struct {
	previewer LinkPreviewer
	logger    *zap.Logger
}

// NewExtractHandler creates a new extract handler.
func NewExtractHandler(previewer LinkPreviewer, logger *zap.Logger) *ExtractHandler {
	return &ExtractHandler{previewer: previewer, logger: logger}
}

// RegisterRoutes registers the extract handler's routes on the given mux.
func (h *ExtractHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /extract", h.Extract)
}

// Extract handles POST /extract.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	tags, err := h.previewer.Extract(r.Context(), req.URL)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, tags); err != nil {
		h.logger.Error("Failed to encode extract response", zap.Error(err))
	}
}
