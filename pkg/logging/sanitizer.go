package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxSnippetLength is the maximum number of runes of message content stored or logged.
	MaxSnippetLength = 1000
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Any bearer credential: JWTs, OpenRouter keys, Google ID tokens
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/=]+`)

	// Bare OpenAI/OpenRouter style secret keys (sk-..., sk-or-v1-...)
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}`)

	// api_key=... query or form values
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{16,}`)

	// user:pass@host credentials embedded in URLs (OpenSearch, Redis)
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeString removes credentials from an arbitrary string.
// Use this before logging upstream error bodies or returning them to callers.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = urlCredentialsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeURL strips embedded credentials from a store URL for logging.
func SanitizeURL(u string) string {
	return urlCredentialsPattern.ReplaceAllString(u, "://"+RedactedText+"@")
}

// TruncateString truncates a string to maxLen bytes and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Snippet truncates content to MaxSnippetLength runes without splitting a character.
// Chat content is frequently non-ASCII, so byte truncation is not safe here.
func Snippet(s string) string {
	return SnippetN(s, MaxSnippetLength)
}

// SnippetN truncates s to at most n runes.
func SnippetN(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
