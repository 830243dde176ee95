// Package contextmgr keeps conversation histories inside a token budget.
// Two variants share one contract: the standard manager replaces oversized
// tool traffic with fixed sentinels; the file-based manager additionally
// spills large outputs of selected tools to content-addressed files under
// the workspace so the agent can re-read them later.
package contextmgr

import (
	"log/slog"

	"github.com/haasonsaas/agentd/internal/tokens"
	"github.com/haasonsaas/agentd/pkg/models"
)

// Truncation sentinels. These exact strings are load-bearing: clients and
// models key off them, and tests assert them verbatim.
const (
	TruncatedOutput      = "[Truncated...re-run tool if you need to see output again.]"
	TruncatedInputOutput = "[Truncated...re-run tool if you need to see input/output again.]"
	savedToFileFormat    = "[Truncated...content saved to %s. You can view it if needed.]"
)

// Manager is the context management contract consumed by the agent loop.
type Manager interface {
	// CountTokens estimates the token footprint of the given turns.
	CountTokens(turns []models.Turn) int

	// ApplyTruncationIfNeeded returns the turns unchanged when they fit the
	// budget, otherwise a rewritten copy. The turn count never changes and
	// the last KeepLastTurns turns are returned verbatim.
	ApplyTruncationIfNeeded(turns []models.Turn) []models.Turn
}

// Config carries the knobs shared by both manager variants.
type Config struct {
	// TokenBudget is the cap above which truncation begins.
	// Default: 120000.
	TokenBudget int

	// KeepLastTurns is the number of trailing turns preserved verbatim.
	// Default: 3.
	KeepLastTurns int

	// Counter estimates token counts. Default: tokens.NewCounter().
	Counter *tokens.Counter

	// Logger receives truncation diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

func sanitizeConfig(cfg Config) Config {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 120_000
	}
	if cfg.KeepLastTurns <= 0 {
		cfg.KeepLastTurns = 3
	}
	if cfg.Counter == nil {
		cfg.Counter = tokens.NewCounter()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// truncatedInputFields maps tool names to the input fields replaced by the
// input/output sentinel. When any listed field of a call grows past the
// spill floor, all listed fields are blanked together.
var truncatedInputFields = map[string][]string{
	"sequential_thinking": {"thought"},
	"str_replace_editor":  {"file_text", "old_str", "new_str"},
}

// truncateToolCallInputs rewrites the designated input fields of a call in
// place on a copied input map. Returns the block unchanged when the tool has
// no designated fields.
func truncateToolCallInputs(block models.ContentBlock) models.ContentBlock {
	if block.Kind != models.BlockToolCall || block.ToolCall == nil {
		return block
	}
	fields, ok := truncatedInputFields[block.ToolCall.Name]
	if !ok {
		return block
	}
	call := *block.ToolCall
	input := make(map[string]any, len(call.Input))
	for k, v := range call.Input {
		input[k] = v
	}
	for _, field := range fields {
		if _, present := input[field]; present {
			input[field] = TruncatedInputOutput
		}
	}
	call.Input = input
	return models.ToolCallBlock(call)
}

// replaceToolResultOutput substitutes a sentinel for a tool result's output,
// dropping any multi-part payload.
func replaceToolResultOutput(block models.ContentBlock, sentinel string) models.ContentBlock {
	result := *block.ToolResult
	result.Content = sentinel
	result.Parts = nil
	return models.ToolResultBlock(result)
}
