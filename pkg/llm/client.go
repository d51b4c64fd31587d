// Package llm talks to an OpenAI-compatible completion aggregator (OpenRouter)
// and cascades a request across a priority-ordered list of models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/logging"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

const completionsPath = "/chat/completions"

// Config holds configuration for creating an upstream client.
type Config struct {
	BaseURL string        // e.g. "https://openrouter.ai/api/v1"
	APIKey  string        // Default key; callers may override per request
	Timeout time.Duration // Bound on a single attempt
	Referer string        // HTTP-Referer header (OpenRouter app attribution)
	Title   string        // X-Title header
}

// Options are per-call settings.
type Options struct {
	// APIKey overrides the client default when non-empty.
	APIKey string
	// Temperature is omitted from the request when nil.
	Temperature *float32
	// ResponseFormat requests structured output, e.g. json_object.
	ResponseFormat *openai.ChatCompletionResponseFormat
}

// Client issues chat completion calls to the upstream aggregator.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a new upstream completion client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger = logger.Named("llm")

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())
	if cfg.Referer != "" {
		httpClient.SetHeader("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		httpClient.SetHeader("X-Title", cfg.Title)
	}

	return &Client{
		http:   httpClient,
		cfg:    *cfg,
		logger: logger,
	}, nil
}

// completionRequest is the body sent to /chat/completions.
type completionRequest struct {
	Model          string                               `json:"model"`
	Messages       []openai.ChatCompletionMessage       `json:"messages"`
	Stream         bool                                 `json:"stream"`
	Temperature    *float32                             `json:"temperature,omitempty"`
	ResponseFormat *openai.ChatCompletionResponseFormat `json:"response_format,omitempty"`
}

// Complete performs one completion call against a single model.
// Failures are returned as *Error with a Kind the cascade can act on.
func (c *Client) Complete(
	ctx context.Context,
	model string,
	messages []models.ConversationTurn,
	opts Options,
) (*models.Completion, error) {
	if model == "" {
		return nil, newError(KindConfiguration, model, "model is required", 0, nil)
	}
	if len(messages) == 0 {
		return nil, newError(KindConfiguration, model, "messages must not be empty", 0, nil)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}
	if apiKey == "" {
		return nil, newError(KindConfiguration, model, "no API key", 0, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := completionRequest{
		Model:          model,
		Messages:       toOpenAIMessages(messages),
		Stream:         false,
		Temperature:    opts.Temperature,
		ResponseFormat: opts.ResponseFormat,
	}

	c.logger.Debug("Completion request",
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(body).
		Post(completionsPath)
	elapsed := time.Since(start)

	if err != nil {
		detail := "request failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("timed out after %s", c.cfg.Timeout)
		}
		c.logger.Warn("Completion transport error",
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.String("error", logging.SanitizeError(err)))
		return nil, newError(KindTransport, model, detail, 0, err)
	}

	completion, llmErr := parseCompletionResponse(model, resp.StatusCode(), resp.Body())
	if llmErr != nil {
		c.logger.Warn("Completion failed",
			zap.String("model", model),
			zap.String("kind", string(llmErr.Kind)),
			zap.Int("status", llmErr.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.String("detail", llmErr.Detail))
		return nil, llmErr
	}

	fields := []zap.Field{
		zap.String("model", model),
		zap.String("raw_model", completion.RawModel),
		zap.Int("images", len(completion.Images)),
		zap.Duration("elapsed", elapsed),
	}
	if completion.Usage != nil {
		fields = append(fields, zap.Int("total_tokens", completion.Usage.TotalTokens))
	}
	c.logger.Info("Completion succeeded", fields...)

	return completion, nil
}

// Endpoint returns the full completions URL, used as the telemetry endpoint label.
func (c *Client) Endpoint() string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + completionsPath
}

// HasDefaultKey reports whether a server-side API key is configured.
func (c *Client) HasDefaultKey() bool {
	return c.cfg.APIKey != ""
}

func toOpenAIMessages(turns []models.ConversationTurn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		}
	}
	return out
}

// statusKind maps a non-2xx HTTP status to an ErrorKind.
func statusKind(status int) ErrorKind {
	if status == http.StatusTooManyRequests {
		return KindRateLimited
	}
	return KindUpstream
}

var _ Completer = (*Client)(nil)
