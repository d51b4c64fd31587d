package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// maxBodyBytes bounds request bodies; chat histories can be long.
const maxBodyBytes = 4 << 20

// DecodeJSON reads the request body into v.
// Returns false on error (after writing an error response).
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "Invalid JSON body"
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			msg = "Request body too large"
		case errors.Is(err, io.EOF):
			msg = "Request body is required"
		}
		if err := ErrorResponse(w, http.StatusBadRequest, msg); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

// ParseTimeRange reads the time_range query parameter, defaulting to 24h.
// Returns false on error (after writing an error response).
func ParseTimeRange(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.TimeRange, bool) {
	tr := models.TimeRange(r.URL.Query().Get("time_range"))
	if tr == "" {
		return models.TimeRange24h, true
	}
	if !tr.IsValid() {
		WriteError(w, fmt.Errorf("%w: time_range must be 24h, 7d or 30d", apperrors.ErrInvalidRequest), logger)
		return "", false
	}
	return tr, true
}
