package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	xhtml "golang.org/x/net/html"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/logging"
)

const (
	defaultExtractTimeout = 10 * time.Second
	maxExtractBodyBytes   = 2 << 20
	browserUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// FetchError is a non-2xx reply from the page being extracted.
type FetchError struct {
	StatusCode int
	URL        string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// ErrFetchFailed wraps network-level failures fetching a page.
var ErrFetchFailed = errors.New("error fetching URL")

// OpenGraphService extracts og:* meta tags from web pages for link previews.
type OpenGraphService struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewOpenGraphService creates a new OpenGraphService. timeout <= 0 uses 10s.
func NewOpenGraphService(timeout time.Duration, logger *zap.Logger) *OpenGraphService {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	logger = logger.Named("opengraph")
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", browserUserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9,th;q=0.8").
		SetHeader("Referer", "https://www.google.com/").
		SetLogger(logger.Sugar())
	return &OpenGraphService{http: client, logger: logger}
}

// Extract fetches rawURL and returns its og:* properties (property -> content).
func (s *OpenGraphService) Extract(ctx context.Context, rawURL string) (map[string]string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) URL", apperrors.ErrInvalidRequest)
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		s.logger.Debug("Fetch failed", zap.String("url", logging.SanitizeURL(u.String())), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, logging.SanitizeError(err))
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, &FetchError{StatusCode: resp.StatusCode(), URL: logging.SanitizeURL(u.String())}
	}

	return ParseOpenGraph(io.LimitReader(body, maxExtractBodyBytes))
}

// ParseOpenGraph returns the og:* meta properties in r. The first value of a
// repeated property wins.
func ParseOpenGraph(r io.Reader) (map[string]string, error) {
	tags := make(map[string]string)
	z := xhtml.NewTokenizer(r)
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return tags, nil
			}
			return tags, fmt.Errorf("parse html: %w", z.Err())
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var property, content string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "property":
					property = strings.TrimSpace(a.Val)
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			if strings.HasPrefix(property, "og:") && content != "" {
				if _, exists := tags[property]; !exists {
					tags[property] = content
				}
			}
		}
	}
}
