package database

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/config"
	"github.com/ekaya-inc/chat-gateway/pkg/retry"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeCluster is an httptest handler that records requests and replies from a route table.
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	route := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if route == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
		return
	}
	route(w)
}

func (f *fakeCluster) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestOpenSearch(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*OpenSearch, *fakeCluster) {
	t.Helper()
	fake := &fakeCluster{routes: routes}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewOpenSearchClient(&config.OpenSearchConfig{
		URL:            server.URL,
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	return client, fake
}

func TestNewOpenSearchClient_NotConfigured(t *testing.T) {
	client, err := NewOpenSearchClient(&config.OpenSearchConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOpenSearch_Get(t *testing.T) {
	client, _ := newTestOpenSearch(t, map[string]func(http.ResponseWriter){
		"GET /chat_summaries/_doc/c1": reply(200, `{"_id":"c1","found":true,"_source":{"title":"Trip"}}`),
		"GET /chat_summaries/_doc/c2": reply(404, `{"_id":"c2","found":false}`),
		"GET /missing/_doc/c1":        reply(404, `{"error":{"type":"index_not_found_exception","reason":"no such index"}}`),
	})

	var doc struct {
		Title string `json:"title"`
	}
	found, err := client.Get(context.Background(), "chat_summaries", "c1", &doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Trip", doc.Title)

	found, err = client.Get(context.Background(), "chat_summaries", "c2", &doc)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = client.Get(context.Background(), "missing", "c1", &doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenSearch_UpdateDocAsUpsert(t *testing.T) {
	client, fake := newTestOpenSearch(t, nil)

	err := client.Update(context.Background(), "chat_summaries", "c1", map[string]any{"title": "T"}, nil)
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/chat_summaries/_update/c1", req.Path)
	assert.Equal(t, "retry_on_conflict=3", req.Query)
	assert.Equal(t, true, req.Body["doc_as_upsert"])
	assert.Equal(t, map[string]any{"title": "T"}, req.Body["doc"])
}

func TestOpenSearch_UpdateWithUpsertDoc(t *testing.T) {
	client, fake := newTestOpenSearch(t, nil)

	err := client.Update(context.Background(), "chat_summaries", "c1",
		map[string]any{"message_count": 3},
		map[string]any{"chat_id": "c1", "message_count": 3})
	require.NoError(t, err)

	req := fake.last()
	assert.NotContains(t, req.Body, "doc_as_upsert")
	assert.Equal(t, "c1", req.Body["upsert"].(map[string]any)["chat_id"])
}

func TestOpenSearch_Search(t *testing.T) {
	client, fake := newTestOpenSearch(t, map[string]func(http.ResponseWriter){
		"POST /token_usage/_search": reply(200, `{"hits":{"total":{"value":2},"hits":[{"_id":"a","_source":{"model":"m"}}]},"aggregations":{"total":{"value":42}}}`),
	})

	result, err := client.Search(context.Background(), "token_usage", map[string]any{"size": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Hits.Total.Value)
	require.Len(t, result.Hits.Hits, 1)
	assert.Equal(t, "a", result.Hits.Hits[0].ID)
	assert.JSONEq(t, `{"total":{"value":42}}`, string(result.Aggregations))
	assert.EqualValues(t, 1, fake.last().Body["size"])
}

func TestOpenSearch_ErrorClassification(t *testing.T) {
	client, _ := newTestOpenSearch(t, map[string]func(http.ResponseWriter){
		"POST /blocked/_doc":    reply(403, `{"error":{"type":"cluster_block_exception","reason":"index read-only"}}`),
		"POST /busy/_doc":       reply(503, `{"error":{"type":"unavailable","reason":"busy"}}`),
		"POST /missing/_search": reply(404, `{"error":{"type":"index_not_found_exception","reason":"no such index [missing]"}}`),
	})

	err := client.Index(context.Background(), "blocked", "", map[string]any{"a": 1})
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "cluster_block_exception", respErr.Type)
	assert.False(t, respErr.IsRetryable())

	err = client.Index(context.Background(), "busy", "", map[string]any{"a": 1})
	assert.True(t, retry.IsRetryable(err))

	_, err = client.Search(context.Background(), "missing", map[string]any{})
	assert.True(t, IsNotFound(err))
}

func TestOpenSearch_EnsureIndex(t *testing.T) {
	client, fake := newTestOpenSearch(t, map[string]func(http.ResponseWriter){
		"HEAD /existing": reply(200, ``),
		"HEAD /fresh":    reply(404, ``),
		"PUT /fresh":     reply(200, `{"acknowledged":true}`),
		"HEAD /racing":   reply(404, ``),
		"PUT /racing":    reply(400, `{"error":{"type":"resource_already_exists_exception","reason":"exists"}}`),
	})

	require.NoError(t, client.EnsureIndex(context.Background(), "existing", nil))
	assert.Equal(t, http.MethodHead, fake.last().Method)

	mappings := map[string]any{"properties": map[string]any{"chat_id": map[string]any{"type": "keyword"}}}
	require.NoError(t, client.EnsureIndex(context.Background(), "fresh", mappings))
	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Contains(t, req.Body, "mappings")

	assert.NoError(t, client.EnsureIndex(context.Background(), "racing", nil))
}

func TestOpenSearch_IndexWithID(t *testing.T) {
	client, fake := newTestOpenSearch(t, nil)

	require.NoError(t, client.Index(context.Background(), "token_usage", "req-1", map[string]any{"model": "m"}))
	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/token_usage/_doc/req-1", req.Path)
}
