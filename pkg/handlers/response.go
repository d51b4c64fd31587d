package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/logging"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes {success:true, data}.
func WriteSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return WriteJSON(w, statusCode, Envelope{Success: true, Data: data})
}

// ErrorResponse writes {success:false, error:message} and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, Envelope{Success: false, Error: message})
}

// WriteError maps err to a status code and user-facing message and writes it.
// Server-side failures are logged; client errors are not.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, message := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	if werr := ErrorResponse(w, status, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// ErrorStatus returns the HTTP status and message for err.
func ErrorStatus(err error) (int, string) {
	var (
		agg      *llm.AggregateError
		llmErr   *llm.Error
		fetchErr *services.FetchError
	)

	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest, logging.SanitizeError(err)
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "API key required: send Authorization: Bearer <key> or configure OPENROUTER_API_KEY"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, logging.SanitizeError(err)
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, apperrors.ErrStoreUnavailable), errors.Is(err, apperrors.ErrNotConfigured):
		return http.StatusServiceUnavailable, logging.SanitizeError(err)
	case errors.As(err, &fetchErr), errors.Is(err, services.ErrFetchFailed):
		return http.StatusBadRequest, logging.SanitizeError(err)
	case errors.As(err, &agg):
		if agg.AllKind(llm.KindRateLimited) {
			return http.StatusBadGateway, "All models are rate limited, try again shortly"
		}
		if last := agg.Last(); last != nil {
			return http.StatusBadGateway, "All models failed: " + logging.SanitizeString(last.Detail)
		}
		return http.StatusBadGateway, "All models failed"
	case errors.As(err, &llmErr):
		if llmErr.Kind == llm.KindConfiguration {
			return http.StatusServiceUnavailable, logging.SanitizeString(llmErr.Detail)
		}
		return http.StatusBadGateway, logging.SanitizeString(llmErr.Detail)
	case errors.Is(err, services.ErrUnparseableSummary):
		return http.StatusBadGateway, "Summary could not be generated"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
