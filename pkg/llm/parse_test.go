package llm

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_String(t *testing.T) {
	text, images, err := parseContent([]byte(`"plain answer"`))
	require.NoError(t, err)
	assert.Equal(t, "plain answer", text)
	assert.Empty(t, images)
}

func TestParseContent_Parts(t *testing.T) {
	raw := `[{"type":"text","text":"A"},{"type":"image_url","image_url":{"url":"u1"}},{"type":"text","text":"B"}]`

	text, images, err := parseContent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "AB", text)
	assert.Equal(t, []string{"u1"}, images)
}

func TestParseContent_UnknownPartIgnored(t *testing.T) {
	raw := `[{"type":"reasoning","text":"hidden"},{"type":"text","text":"shown"}]`

	text, _, err := parseContent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "shown", text)
}

func TestParseContent_NullAndObject(t *testing.T) {
	text, images, err := parseContent([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, images)

	_, _, err = parseContent([]byte(`{"text":"x"}`))
	assert.Error(t, err)
}

func TestParseCompletionResponse_MessageImages(t *testing.T) {
	body := `{"model":"img-model","choices":[{"message":{"content":[{"type":"image_url","image_url":{"url":"u1"}}],"images":[{"type":"image_url","image_url":{"url":"u2"}}]}}]}`

	completion, llmErr := parseCompletionResponse("img", http.StatusOK, []byte(body))
	require.Nil(t, llmErr)
	assert.Empty(t, completion.Text)
	assert.Equal(t, []string{"u1", "u2"}, completion.Images)
	assert.Nil(t, completion.Usage)
}

func TestParseCompletionResponse_ZeroUsageDropped(t *testing.T) {
	body := `{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`

	completion, llmErr := parseCompletionResponse("m", http.StatusOK, []byte(body))
	require.Nil(t, llmErr)
	assert.Nil(t, completion.Usage)
}

func TestErrorDetail_SanitizesBody(t *testing.T) {
	detail := errorDetail([]byte(`{"error":{"message":"bad key sk-or-v1-abcdef0123456789abcdef"}}`))
	assert.NotContains(t, detail, "abcdef0123456789")
}
