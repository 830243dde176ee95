// Package history maintains the role-alternating conversation log the agent
// loop reads from and appends to. Turn 0 is always the user; turns strictly
// alternate afterwards.
package history

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/agentd/pkg/models"
)

// ErrInvariant is returned when an append would break turn alternation or
// block-side restrictions. These are fatal to the current run.
var ErrInvariant = errors.New("history invariant violated")

// History is the ordered list of turns. Not safe for concurrent use; each
// agent owns exactly one and mutates it from its own goroutine.
type History struct {
	turns []models.Turn

	// lastUserPromptIdx is the turn index of the most recent AddUserPrompt,
	// or -1. Edit-query rewinds to just before it.
	lastUserPromptIdx int
}

// New returns an empty history.
func New() *History {
	return &History{lastUserPromptIdx: -1}
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.turns)
}

// IsNextTurnUser reports whether the next appended turn must be a user turn.
func (h *History) IsNextTurnUser() bool {
	return len(h.turns)%2 == 0
}

// IsNextTurnAssistant reports whether the next appended turn must be an
// assistant turn.
func (h *History) IsNextTurnAssistant() bool {
	return !h.IsNextTurnUser()
}

// Turns returns the underlying turn list. The caller must treat it as
// read-only; SetTurns replaces it wholesale after context truncation.
func (h *History) Turns() []models.Turn {
	return h.turns
}

// SetTurns replaces the turn list with a truncated view produced by a
// context manager. The replacement must have the same turn count so the
// alternation parity and the recorded prompt index stay valid.
func (h *History) SetTurns(turns []models.Turn) error {
	if len(turns) != len(h.turns) {
		return fmt.Errorf("%w: replacement has %d turns, history has %d", ErrInvariant, len(turns), len(h.turns))
	}
	h.turns = turns
	return nil
}

// AddUserPrompt appends a user turn of [images..., text] and records its
// index for ClearFromLastUserPrompt.
func (h *History) AddUserPrompt(text string, images []models.ContentBlock) error {
	blocks := make(models.Turn, 0, len(images)+1)
	for _, img := range images {
		if img.Kind != models.BlockImage {
			return fmt.Errorf("%w: prompt attachment must be an image block, got %s", ErrInvariant, img.Kind)
		}
		blocks = append(blocks, img)
	}
	blocks = append(blocks, models.UserText(text))
	if err := h.AddUserTurn(blocks); err != nil {
		return err
	}
	h.lastUserPromptIdx = len(h.turns) - 1
	return nil
}

// AddUserTurn appends a turn of user-side blocks.
func (h *History) AddUserTurn(blocks models.Turn) error {
	if !h.IsNextTurnUser() {
		return fmt.Errorf("%w: expected assistant turn next", ErrInvariant)
	}
	for _, b := range blocks {
		if !b.IsUserSide() {
			return fmt.Errorf("%w: %s block in user turn", ErrInvariant, b.Kind)
		}
	}
	h.turns = append(h.turns, blocks)
	return nil
}

// AddAssistantTurn appends a turn of assistant-side blocks.
func (h *History) AddAssistantTurn(blocks models.Turn) error {
	if !h.IsNextTurnAssistant() {
		return fmt.Errorf("%w: expected user turn next", ErrInvariant)
	}
	for _, b := range blocks {
		if !b.IsAssistantSide() {
			return fmt.Errorf("%w: %s block in assistant turn", ErrInvariant, b.Kind)
		}
	}
	h.turns = append(h.turns, blocks)
	return nil
}

// AddToolCallResult packages a single tool result as a user turn.
func (h *History) AddToolCallResult(call models.ToolCall, result models.ToolResult) error {
	return h.AddToolCallResults([]models.ToolCall{call}, []models.ToolResult{result})
}

// AddToolCallResults packages tool results as one user turn, preserving call
// order. Result tool_call ids are filled from the calls when absent.
func (h *History) AddToolCallResults(calls []models.ToolCall, results []models.ToolResult) error {
	if len(calls) != len(results) {
		return fmt.Errorf("%w: %d calls but %d results", ErrInvariant, len(calls), len(results))
	}
	blocks := make(models.Turn, 0, len(results))
	for i, res := range results {
		if res.ToolCallID == "" {
			res.ToolCallID = calls[i].ID
		}
		if res.Name == "" {
			res.Name = calls[i].Name
		}
		blocks = append(blocks, models.ToolResultBlock(res))
	}
	return h.AddUserTurn(blocks)
}

// PendingToolCalls returns the tool calls of the last turn iff it is an
// assistant turn; otherwise nil.
func (h *History) PendingToolCalls() []models.ToolCall {
	// Assistant turns sit at odd indices, so the last turn is an assistant
	// turn exactly when the turn count is even and non-zero.
	if len(h.turns) == 0 || !h.IsNextTurnUser() {
		return nil
	}
	last := h.turns[len(h.turns)-1]
	var calls []models.ToolCall
	for _, b := range last {
		if b.Kind == models.BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// LastAssistantText returns the final assistant text of the last assistant
// turn, or "" when none exists.
func (h *History) LastAssistantText() string {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if i%2 == 0 {
			continue
		}
		text := ""
		for _, b := range h.turns[i] {
			if b.Kind == models.BlockAssistantText {
				text = b.Text
			}
		}
		return text
	}
	return ""
}

// Clear drops all turns and the recorded prompt index.
func (h *History) Clear() {
	h.turns = nil
	h.lastUserPromptIdx = -1
}

// ClearFromLastUserPrompt truncates back to and excluding the most recent
// AddUserPrompt turn, supporting edit-query. Reports whether anything was
// removed.
func (h *History) ClearFromLastUserPrompt() bool {
	if h.lastUserPromptIdx < 0 || h.lastUserPromptIdx >= len(h.turns) {
		return false
	}
	h.turns = h.turns[:h.lastUserPromptIdx]
	h.lastUserPromptIdx = -1
	return true
}
