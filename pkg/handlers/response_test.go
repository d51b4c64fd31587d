package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) Envelope {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return Envelope{Success: raw.Success, Error: raw.Error}
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteSuccess(rec, http.StatusCreated, map[string]string{"id": "x"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var data map[string]string
	env := decodeEnvelope(t, rec, &data)
	assert.True(t, env.Success)
	assert.Equal(t, "x", data["id"])
}

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(rec, http.StatusNotFound, "gone"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "gone", env.Error)
}

func TestErrorStatus(t *testing.T) {
	agg := &llm.AggregateError{Attempts: []models.Attempt{
		{Model: "a", Err: llm.RateLimited("a")},
		{Model: "b", Err: llm.UpstreamFailure("b", 500)},
	}}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: message is required", apperrors.ErrInvalidRequest), http.StatusBadRequest},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"store", apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"not configured", apperrors.ErrNotConfigured, http.StatusServiceUnavailable},
		{"cascade exhausted", agg, http.StatusBadGateway},
		{"single upstream", llm.UpstreamFailure("a", 503), http.StatusBadGateway},
		{"fetch", &services.FetchError{StatusCode: 403, URL: "https://x"}, http.StatusBadRequest},
		{"unparseable summary", fmt.Errorf("wrap: %w", services.ErrUnparseableSummary), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := ErrorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v map[string]any

	rec := httptest.NewRecorder()
	ok := DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)), &v, zap.NewNop())
	assert.True(t, ok)

	rec = httptest.NewRecorder()
	ok = DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &v, zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	ok = DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &v, zap.NewNop())
	assert.False(t, ok)
	assert.Contains(t, rec.Body.String(), "required")
}

func TestParseTimeRange(t *testing.T) {
	rec := httptest.NewRecorder()
	tr, ok := ParseTimeRange(rec, httptest.NewRequest(http.MethodGet, "/?time_range=7d", nil), zap.NewNop())
	assert.True(t, ok)
	assert.Equal(t, models.TimeRange7d, tr)

	tr, ok = ParseTimeRange(rec, httptest.NewRequest(http.MethodGet, "/", nil), zap.NewNop())
	assert.True(t, ok)
	assert.Equal(t, models.TimeRange24h, tr)

	rec = httptest.NewRecorder()
	_, ok = ParseTimeRange(rec, httptest.NewRequest(http.MethodGet, "/?time_range=1y", nil), zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
