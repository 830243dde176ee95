package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/pkg/models"
)

func TestAlternationStartsWithUser(t *testing.T) {
	h := New()

	assert.True(t, h.IsNextTurnUser())
	err := h.AddAssistantTurn(models.Turn{models.AssistantText("hi")})
	assert.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, h.AddUserPrompt("hello", nil))
	assert.True(t, h.IsNextTurnAssistant())

	err = h.AddUserTurn(models.Turn{models.UserText("again")})
	assert.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, h.AddAssistantTurn(models.Turn{models.AssistantText("hi")}))
	assert.True(t, h.IsNextTurnUser())
	assert.Equal(t, 2, h.Len())
}

func TestBlockSideRestrictions(t *testing.T) {
	h := New()

	err := h.AddUserTurn(models.Turn{models.AssistantText("nope")})
	assert.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, h.AddUserPrompt("q", nil))
	err = h.AddAssistantTurn(models.Turn{models.UserText("nope")})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestPendingToolCalls(t *testing.T) {
	h := New()
	assert.Empty(t, h.PendingToolCalls())

	require.NoError(t, h.AddUserPrompt("run it", nil))
	assert.Empty(t, h.PendingToolCalls())

	call := models.ToolCall{ID: "tc1", Name: "bash", Input: map[string]any{"command": "echo OK"}}
	require.NoError(t, h.AddAssistantTurn(models.Turn{
		models.AssistantText("running"),
		models.ToolCallBlock(call),
	}))

	pending := h.PendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "tc1", pending[0].ID)
	assert.Equal(t, "bash", pending[0].Name)

	require.NoError(t, h.AddToolCallResult(call, models.ToolResult{Content: "OK"}))
	assert.Empty(t, h.PendingToolCalls())

	// Result id and name were filled from the call.
	last := h.Turns()[h.Len()-1]
	require.Len(t, last, 1)
	require.NotNil(t, last[0].ToolResult)
	assert.Equal(t, "tc1", last[0].ToolResult.ToolCallID)
	assert.Equal(t, "bash", last[0].ToolResult.Name)
}

func TestToolCallResultsLengthMismatch(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("q", nil))
	call := models.ToolCall{ID: "tc1", Name: "bash"}
	require.NoError(t, h.AddAssistantTurn(models.Turn{models.ToolCallBlock(call)}))

	err := h.AddToolCallResults([]models.ToolCall{call}, nil)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestLastAssistantText(t *testing.T) {
	h := New()
	assert.Empty(t, h.LastAssistantText())

	require.NoError(t, h.AddUserPrompt("q", nil))
	require.NoError(t, h.AddAssistantTurn(models.Turn{
		models.AssistantText("first"),
		models.AssistantText("second"),
	}))
	assert.Equal(t, "second", h.LastAssistantText())
}

func TestClearFromLastUserPrompt(t *testing.T) {
	h := New()

	// Nothing recorded yet.
	assert.False(t, h.ClearFromLastUserPrompt())

	require.NoError(t, h.AddUserPrompt("q1", nil))
	require.NoError(t, h.AddAssistantTurn(models.Turn{models.AssistantText("a1")}))
	require.NoError(t, h.AddUserPrompt("q2", nil))
	require.NoError(t, h.AddAssistantTurn(models.Turn{models.AssistantText("a2")}))

	before := h.Len()
	assert.True(t, h.ClearFromLastUserPrompt())
	assert.Less(t, h.Len(), before)
	assert.Equal(t, 2, h.Len())

	// The history is positioned for a fresh user prompt.
	assert.True(t, h.IsNextTurnUser())
	require.NoError(t, h.AddUserPrompt("q2-better", nil))

	// A second clear without a new prompt recorded after reset still works
	// because AddUserPrompt recorded it again.
	assert.True(t, h.ClearFromLastUserPrompt())
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.ClearFromLastUserPrompt())
}

func TestUserPromptWithImages(t *testing.T) {
	h := New()
	img := models.Image("image/png", "aGVsbG8=")
	require.NoError(t, h.AddUserPrompt("see this", []models.ContentBlock{img}))

	turn := h.Turns()[0]
	require.Len(t, turn, 2)
	assert.Equal(t, models.BlockImage, turn[0].Kind)
	assert.Equal(t, models.BlockUserText, turn[1].Kind)
	assert.Equal(t, "see this", turn[1].Text)
}

func TestSetTurnsPreservesLength(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("q", nil))
	require.NoError(t, h.AddAssistantTurn(models.Turn{models.AssistantText("a")}))

	err := h.SetTurns([]models.Turn{{models.UserText("q")}})
	assert.ErrorIs(t, err, ErrInvariant)

	replacement := []models.Turn{
		{models.UserText("q")},
		{models.AssistantText("truncated")},
	}
	require.NoError(t, h.SetTurns(replacement))
	assert.Equal(t, "truncated", h.LastAssistantText())
}
