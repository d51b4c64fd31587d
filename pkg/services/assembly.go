package services

import (
	"strings"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/prompts"
)

// ModelQuirks are per-model adjustments to message layout.
type ModelQuirks struct {
	// NoSystemRole is set for models that reject the system role.
	NoSystemRole bool
}

// QuirkTable maps model ids to quirks by substring match.
type QuirkTable struct {
	noSystemRole []string
}

// NewQuirkTable creates a QuirkTable. A model rejects the system role when its
// id contains any of noSystemRole (case-insensitive).
func NewQuirkTable(noSystemRole []string) QuirkTable {
	patterns := make([]string, 0, len(noSystemRole))
	for _, p := range noSystemRole {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return QuirkTable{noSystemRole: patterns}
}

// For returns the quirks of model.
func (q QuirkTable) For(model string) ModelQuirks {
	id := strings.ToLower(model)
	for _, p := range q.noSystemRole {
		if strings.Contains(id, p) {
			return ModelQuirks{NoSystemRole: true}
		}
	}
	return ModelQuirks{}
}

// Assemble builds the ordered message list sent upstream.
//
// Normally the result is: the primary system turn (the caller's own when
// history starts with one, otherwise directive), then memory as a second
// system turn when present, then history, then newMessage as a user turn.
//
// For models without a system role, directive and memory are instead
// prefixed to the first history turn (coerced to user), or to newMessage
// when history is empty, and any remaining system turns become user turns.
//
// The input slice is never modified.
func Assemble(history []models.ConversationTurn, newMessage, directive, memory string, quirks ModelQuirks) []models.ConversationTurn {
	memory = strings.TrimSpace(memory)
	out := make([]models.ConversationTurn, 0, len(history)+3)

	if quirks.NoSystemRole {
		return assembleWithoutSystem(out, history, newMessage, directive, memory)
	}

	rest := history
	if len(history) > 0 && history[0].Role == models.RoleSystem {
		out = append(out, history[0])
		rest = history[1:]
	} else {
		out = append(out, models.ConversationTurn{Role: models.RoleSystem, Content: directive})
	}

	if memory != "" {
		out = append(out, models.ConversationTurn{Role: models.RoleSystem, Content: prompts.MemoryInstruction(memory)})
	}

	out = append(out, rest...)
	return append(out, models.ConversationTurn{Role: models.RoleUser, Content: newMessage})
}

func assembleWithoutSystem(out, history []models.ConversationTurn, newMessage, directive, memory string) []models.ConversationTurn {
	prefix := directive
	if memory != "" {
		prefix = joinNonEmpty(prefix, prompts.MemoryInstruction(memory))
	}

	if len(history) == 0 {
		return append(out, models.ConversationTurn{Role: models.RoleUser, Content: joinNonEmpty(prefix, newMessage)})
	}

	for i, turn := range history {
		if i == 0 {
			turn.Role = models.RoleUser
			turn.Content = joinNonEmpty(prefix, turn.Content)
		} else if turn.Role == models.RoleSystem {
			turn.Role = models.RoleUser
		}
		out = append(out, turn)
	}
	return append(out, models.ConversationTurn{Role: models.RoleUser, Content: newMessage})
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
