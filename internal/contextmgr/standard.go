package contextmgr

import (
	"github.com/haasonsaas/agentd/pkg/models"
)

// Standard replaces tool outputs (and designated tool inputs) in older turns
// with fixed sentinels once the history exceeds the token budget.
type Standard struct {
	cfg Config
}

// NewStandard creates a standard context manager.
func NewStandard(cfg Config) *Standard {
	return &Standard{cfg: sanitizeConfig(cfg)}
}

// CountTokens estimates the token footprint of the turns.
func (m *Standard) CountTokens(turns []models.Turn) int {
	return m.cfg.Counter.CountTurns(turns)
}

// ApplyTruncationIfNeeded rewrites older turns when the budget is exceeded.
func (m *Standard) ApplyTruncationIfNeeded(turns []models.Turn) []models.Turn {
	before := m.CountTokens(turns)
	if before <= m.cfg.TokenBudget {
		return turns
	}

	cutoff := len(turns) - m.cfg.KeepLastTurns
	if cutoff < 0 {
		cutoff = 0
	}

	out := make([]models.Turn, len(turns))
	for i, turn := range turns {
		if i >= cutoff {
			out[i] = turn
			continue
		}
		rewritten := make(models.Turn, len(turn))
		for j, block := range turn {
			switch {
			case block.Kind == models.BlockToolResult && block.ToolResult != nil:
				rewritten[j] = replaceToolResultOutput(block, TruncatedOutput)
			case block.Kind == models.BlockToolCall:
				rewritten[j] = truncateToolCallInputs(block)
			default:
				rewritten[j] = block
			}
		}
		out[i] = rewritten
	}

	m.cfg.Logger.Info("truncated context",
		"tokens_before", before,
		"tokens_after", m.CountTokens(out),
		"budget", m.cfg.TokenBudget,
	)
	return out
}
