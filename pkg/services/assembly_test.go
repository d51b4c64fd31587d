package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/prompts"
)

func turn(role models.Role, content string) models.ConversationTurn {
	return models.ConversationTurn{Role: role, Content: content}
}

func TestAssemble_EmptyHistoryNoMemory(t *testing.T) {
	got := Assemble(nil, "hi", "SYS", "", ModelQuirks{})

	assert.Equal(t, []models.ConversationTurn{
		turn(models.RoleSystem, "SYS"),
		turn(models.RoleUser, "hi"),
	}, got)
}

func TestAssemble_MemoryIsSecondSystemTurn(t *testing.T) {
	history := []models.ConversationTurn{
		turn(models.RoleUser, "first"),
		turn(models.RoleAssistant, "answer"),
	}

	got := Assemble(history, "next", "SYS", "likes hiking", ModelQuirks{})

	require.Len(t, got, 5)
	assert.Equal(t, turn(models.RoleSystem, "SYS"), got[0])
	assert.Equal(t, turn(models.RoleSystem, prompts.MemoryInstruction("likes hiking")), got[1])
	assert.Equal(t, history, got[2:4])
	assert.Equal(t, turn(models.RoleUser, "next"), got[4])
}

func TestAssemble_CallerSystemTurnReplacesDirective(t *testing.T) {
	history := []models.ConversationTurn{
		turn(models.RoleSystem, "be a pirate"),
		turn(models.RoleUser, "ahoy"),
	}

	got := Assemble(history, "next", "SYS", "mem", ModelQuirks{})

	require.Len(t, got, 4)
	assert.Equal(t, turn(models.RoleSystem, "be a pirate"), got[0])
	assert.Equal(t, models.RoleSystem, got[1].Role)
	assert.Contains(t, got[1].Content, "mem")
	assert.Equal(t, turn(models.RoleUser, "ahoy"), got[2])
	assert.Equal(t, turn(models.RoleUser, "next"), got[3])
}

func TestAssemble_BlankMemoryIsOmitted(t *testing.T) {
	got := Assemble(nil, "hi", "SYS", "   ", ModelQuirks{})
	assert.Len(t, got, 2)
}

func TestAssemble_NoSystemRole(t *testing.T) {
	quirks := ModelQuirks{NoSystemRole: true}

	t.Run("empty history prefixes new message", func(t *testing.T) {
		got := Assemble(nil, "hi", "SYS", "", quirks)
		assert.Equal(t, []models.ConversationTurn{turn(models.RoleUser, "SYS\n\nhi")}, got)
	})

	t.Run("prefix lands on first history turn", func(t *testing.T) {
		history := []models.ConversationTurn{
			turn(models.RoleAssistant, "welcome"),
			turn(models.RoleSystem, "extra rules"),
			turn(models.RoleUser, "question"),
		}

		got := Assemble(history, "next", "SYS", "mem", quirks)

		require.Len(t, got, 4)
		for _, m := range got {
			assert.NotEqual(t, models.RoleSystem, m.Role)
		}
		assert.Equal(t, models.RoleUser, got[0].Role)
		assert.Equal(t, "SYS\n\n"+prompts.MemoryInstruction("mem")+"\n\nwelcome", got[0].Content)
		assert.Equal(t, turn(models.RoleUser, "extra rules"), got[1])
		assert.Equal(t, turn(models.RoleUser, "next"), got[3])
	})
}

func TestAssemble_DoesNotModifyInput(t *testing.T) {
	history := []models.ConversationTurn{turn(models.RoleSystem, "rules")}

	Assemble(history, "hi", "SYS", "mem", ModelQuirks{NoSystemRole: true})

	assert.Equal(t, turn(models.RoleSystem, "rules"), history[0])
}

func TestQuirkTable_For(t *testing.T) {
	table := NewQuirkTable([]string{" Google/Gemma ", ""})

	assert.True(t, table.For("google/gemma-3-27b-it:free").NoSystemRole)
	assert.False(t, table.For("meta-llama/llama-3.3-70b-instruct:free").NoSystemRole)
	assert.False(t, NewQuirkTable(nil).For("google/gemma").NoSystemRole)
}
