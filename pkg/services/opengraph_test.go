package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
)

const samplePage = `<!doctype html>
<html><head>
<meta property="og:title" content=" Chiang Mai Guide ">
<meta property="og:image" content="https://example.com/a.jpg"/>
<meta property="og:image" content="https://example.com/b.jpg"/>
<meta name="description" content="not open graph">
<meta property="twitter:card" content="summary">
<meta property="og:empty" content="">
</head><body><p>hello</p></body></html>`

func TestParseOpenGraph(t *testing.T) {
	tags, err := ParseOpenGraph(strings.NewReader(samplePage))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"og:title": "Chiang Mai Guide",
		"og:image": "https://example.com/a.jpg",
	}, tags)
}

func TestOpenGraphService_Extract(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(samplePage))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	svc := NewOpenGraphService(0, zap.NewNop())

	tags, err := svc.Extract(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Chiang Mai Guide", tags["og:title"])
	assert.Contains(t, userAgent, "Mozilla/5.0")

	_, err = svc.Extract(context.Background(), server.URL+"/blocked")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}

func TestOpenGraphService_RejectsNonHTTP(t *testing.T) {
	svc := NewOpenGraphService(0, zap.NewNop())

	for _, raw := range []string{"", "ftp://example.com", "/relative", "javascript:alert(1)"} {
		_, err := svc.Extract(context.Background(), raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest, raw)
	}
}

func TestOpenGraphService_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewOpenGraphService(0, zap.NewNop()).Extract(context.Background(), url)
	assert.ErrorIs(t, err, ErrFetchFailed)
}
