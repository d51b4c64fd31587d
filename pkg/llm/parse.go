package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ekaya-inc/chat-gateway/pkg/logging"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// completionResponse is the subset of the aggregator response we consume.
// Content is kept raw because it is either a string or a list of typed parts.
type completionResponse struct {
	Model   string         `json:"model"`
	Choices []choice       `json:"choices"`
	Usage   *openai.Usage  `json:"usage,omitempty"`
	Error   *upstreamError `json:"error,omitempty"`
}

type choice struct {
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Images  []imagePart     `json:"images,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type imagePart struct {
	Type     string                      `json:"type"`
	ImageURL *openai.ChatMessageImageURL `json:"image_url,omitempty"`
}

// contentPart mirrors openai.ChatMessagePart but tolerates unknown part types.
type contentPart struct {
	Type     openai.ChatMessagePartType  `json:"type"`
	Text     string                      `json:"text,omitempty"`
	ImageURL *openai.ChatMessageImageURL `json:"image_url,omitempty"`
}

// upstreamError is the error envelope OpenRouter returns, sometimes with HTTP 200.
type upstreamError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// status returns the numeric code when the envelope carries one.
func (e *upstreamError) status() int {
	var n int
	if err := json.Unmarshal(e.Code, &n); err == nil {
		return n
	}
	return 0
}

// parseCompletionResponse turns an HTTP status and body into a Completion or a classified Error.
func parseCompletionResponse(model string, status int, body []byte) (*models.Completion, *Error) {
	if status < 200 || status >= 300 {
		return nil, newError(statusKind(status), model, errorDetail(body), status, nil)
	}

	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindMalformed, model, "invalid JSON body", status, err)
	}

	if resp.Error != nil {
		code := resp.Error.status()
		kind := KindUpstream
		if code == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return nil, newError(kind, model, logging.SanitizeString(resp.Error.Message), code, nil)
	}

	if len(resp.Choices) == 0 {
		return nil, newError(KindMalformed, model, "no choices in response", status, nil)
	}

	msg := resp.Choices[0].Message
	text, images, err := parseContent(msg.Content)
	if err != nil {
		return nil, newError(KindMalformed, model, err.Error(), status, err)
	}
	for _, img := range msg.Images {
		if img.ImageURL != nil && img.ImageURL.URL != "" {
			images = append(images, img.ImageURL.URL)
		}
	}

	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return nil, newError(KindMalformed, model, "empty completion", status, nil)
	}

	completion := &models.Completion{
		Text:     text,
		Images:   images,
		RawModel: resp.Model,
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		completion.Usage = &models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return completion, nil
}

// parseContent accepts either a plain string or a list of typed parts.
// Text parts are concatenated and image URLs are collected in encounter order.
func parseContent(raw json.RawMessage) (string, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("decode string content: %w", err)
		}
		return s, nil, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", nil, fmt.Errorf("decode content parts: %w", err)
		}
		var text strings.Builder
		var images []string
		for _, p := range parts {
			switch p.Type {
			case openai.ChatMessagePartTypeText:
				text.WriteString(p.Text)
			case openai.ChatMessagePartTypeImageURL:
				if p.ImageURL != nil && p.ImageURL.URL != "" {
					images = append(images, p.ImageURL.URL)
				}
			}
		}
		return text.String(), images, nil
	default:
		return "", nil, fmt.Errorf("unsupported content shape")
	}
}

// errorDetail pulls a short message out of a non-2xx body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error *upstreamError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return logging.SanitizeString(envelope.Error.Message)
	}
	return logging.SanitizeString(logging.TruncateString(strings.TrimSpace(string(body)), 200))
}
