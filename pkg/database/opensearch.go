package database

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/config"
	"github.com/ekaya-inc/chat-gateway/pkg/logging"
)

// OpenSearch is a minimal document client over the OpenSearch REST API.
// It is safe for concurrent use and shared process-wide.
type OpenSearch struct {
	http   *resty.Client
	logger *zap.Logger
}

// ResponseError is a non-2xx reply from OpenSearch.
type ResponseError struct {
	StatusCode int
	Type       string // e.g. index_not_found_exception
	Reason     string
}

func (e *ResponseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("opensearch: HTTP %d %s: %s", e.StatusCode, e.Type, e.Reason)
	}
	return fmt.Sprintf("opensearch: HTTP %d", e.StatusCode)
}

// IsRetryable reports whether the failure is transient (cluster busy or unavailable).
func (e *ResponseError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a missing index or document.
func IsNotFound(err error) bool {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

// SearchHit is one document returned by a search.
type SearchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// SearchResult is the decoded body of a _search call.
type SearchResult struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []SearchHit `json:"hits"`
	} `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations,omitempty"`
}

// NewOpenSearchClient creates a document client for cfg.
// Returns nil if OpenSearch is not configured (URL is empty).
func NewOpenSearchClient(cfg *config.OpenSearchConfig, logger *zap.Logger) (*OpenSearch, error) {
	if !cfg.IsConfigured() {
		return nil, nil
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid opensearch url: %w", err)
	}

	logger = logger.Named("opensearch")

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	if cfg.InsecureTLS {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // self-signed dev clusters
	}

	return &OpenSearch{http: client, logger: logger}, nil
}

// Ping checks that the cluster answers.
func (o *OpenSearch) Ping(ctx context.Context) error {
	resp, err := o.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return fmt.Errorf("opensearch ping: %s", logging.SanitizeError(err))
	}
	return checkResponse(resp)
}

// EnsureIndex creates index with the given mappings when it does not exist.
func (o *OpenSearch) EnsureIndex(ctx context.Context, index string, mappings map[string]any) error {
	resp, err := o.http.R().SetContext(ctx).Head("/" + url.PathEscape(index))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}

	body := map[string]any{}
	if mappings != nil {
		body["mappings"] = mappings
	}
	resp, err = o.http.R().SetContext(ctx).SetBody(body).Put("/" + url.PathEscape(index))
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	if err := checkResponse(resp); err != nil {
		var respErr *ResponseError
		// Another instance created it first.
		if errors.As(err, &respErr) && respErr.Type == "resource_already_exists_exception" {
			return nil
		}
		return fmt.Errorf("create index %s: %w", index, err)
	}

	o.logger.Info("Created index", zap.String("index", index))
	return nil
}

// Index writes doc. An empty id lets OpenSearch assign one.
func (o *OpenSearch) Index(ctx context.Context, index, id string, doc any) error {
	req := o.http.R().SetContext(ctx).SetBody(doc)

	var (
		resp *resty.Response
		err  error
	)
	if id == "" {
		resp, err = req.Post(fmt.Sprintf("/%s/_doc", url.PathEscape(index)))
	} else {
		resp, err = req.Put(fmt.Sprintf("/%s/_doc/%s", url.PathEscape(index), url.PathEscape(id)))
	}
	if err != nil {
		return fmt.Errorf("index into %s: %w", index, err)
	}
	return checkResponse(resp)
}

// Get loads the _source of document id into out.
// Returns false without error when the document or index does not exist.
func (o *OpenSearch) Get(ctx context.Context, index, id string, out any) (bool, error) {
	var envelope struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}

	resp, err := o.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/%s/_doc/%s", url.PathEscape(index), url.PathEscape(id)))
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if err := checkResponse(resp); err != nil {
		return false, err
	}
	if !envelope.Found {
		return false, nil
	}
	if err := json.Unmarshal(envelope.Source, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", index, id, err)
	}
	return true, nil
}

// Update applies a partial document to id. When upsert is non-nil it is
// used as the initial document if id does not exist yet.
func (o *OpenSearch) Update(ctx context.Context, index, id string, doc, upsert map[string]any) error {
	body := map[string]any{"doc": doc}
	if upsert != nil {
		body["upsert"] = upsert
	} else {
		body["doc_as_upsert"] = true
	}

	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParam("retry_on_conflict", "3").
		SetBody(body).
		Post(fmt.Sprintf("/%s/_update/%s", url.PathEscape(index), url.PathEscape(id)))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	return checkResponse(resp)
}

// Search runs query against index.
func (o *OpenSearch) Search(ctx context.Context, index string, query map[string]any) (*SearchResult, error) {
	var result SearchResult
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/_search", url.PathEscape(index)))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh makes recent writes to index visible to search.
func (o *OpenSearch) Refresh(ctx context.Context, index string) error {
	resp, err := o.http.R().SetContext(ctx).Post(fmt.Sprintf("/%s/_refresh", url.PathEscape(index)))
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	return checkResponse(resp)
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	respErr := &ResponseError{StatusCode: resp.StatusCode()}
	var envelope struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil {
		respErr.Type = envelope.Error.Type
		respErr.Reason = logging.SanitizeString(envelope.Error.Reason)
	}
	return respErr
}
