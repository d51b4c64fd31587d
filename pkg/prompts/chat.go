// Package prompts holds the fixed instructions sent to the upstream models.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// SystemDirective is the primary instruction for chat turns.
const SystemDirective = "You are a helpful, friendly assistant. Answer clearly and concisely. " +
	"Use Markdown for lists and code. If you are unsure, say so instead of guessing."

// MemoryPreamble introduces injected memory. The model must use it without
// revealing that it was given.
const MemoryPreamble = "Background about this user from earlier conversations. " +
	"Use it silently to personalize your answer. Do not mention that you were given this context " +
	"and do not quote it unless the user asks about it.\n\n"

// MemoryInstruction renders memory as the text of the memory system turn.
func MemoryInstruction(memory string) string {
	return MemoryPreamble + strings.TrimSpace(memory)
}

// SummaryInstruction asks for a JSON title/summary/topics triple, with the
// label format as an accepted alternative.
const SummaryInstruction = "You summarize conversations for long-term memory. " +
	"Read the conversation and respond with a single JSON object with exactly these keys:\n" +
	`{"title": "short title, at most 8 words", "summary": "2-4 sentences on what the user wanted and what was concluded", "topics": ["topic", "topic"]}` + "\n" +
	"Write the summary in the same language as the conversation. " +
	"If you cannot produce JSON, answer in this exact format instead:\n" +
	"Title: ...\nSummary: ...\nTopics: topic, topic"

// BuildSummaryPrompt renders the transcript sent for summarization.
func BuildSummaryPrompt(turns []models.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Conversation:\n\n")
	for _, t := range turns {
		b.WriteString(fmt.Sprintf("%s: %s\n", roleLabel(t.Role), strings.TrimSpace(t.Content)))
	}
	b.WriteString("\nReturn the JSON object now.")
	return b.String()
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	default:
		return "User"
	}
}
