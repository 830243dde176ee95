package contextmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/agentd/pkg/models"
)

// agentMemoryDir is the workspace subdirectory receiving spilled outputs.
const agentMemoryDir = "agent_memory"

// defaultSpillFloor is the token floor at and above which eligible tool
// outputs are written to disk instead of being discarded. Must exceed the
// length of the saved-to-file sentinel so truncation never grows a turn.
const defaultSpillFloor = 1499

// spillStemFields maps save-to-file tool names to the call input field the
// spill filename stem derives from.
var spillStemFields = map[string]string{
	"visit_webpage": "url",
	"deep_research": "query",
}

// FileBased behaves like Standard but preserves large outputs of selected
// tools as content-addressed files under <workspace>/agent_memory so the
// agent can view them again later.
type FileBased struct {
	cfg          Config
	workspaceDir string
	spillFloor   int
}

// NewFileBased creates a file-based context manager rooted at workspaceDir.
func NewFileBased(cfg Config, workspaceDir string) *FileBased {
	return &FileBased{
		cfg:          sanitizeConfig(cfg),
		workspaceDir: workspaceDir,
		spillFloor:   defaultSpillFloor,
	}
}

// CountTokens estimates the token footprint of the turns.
func (m *FileBased) CountTokens(turns []models.Turn) int {
	return m.cfg.Counter.CountTurns(turns)
}

// ApplyTruncationIfNeeded rewrites older turns when the budget is exceeded,
// spilling eligible outputs to agent_memory files.
func (m *FileBased) ApplyTruncationIfNeeded(turns []models.Turn) []models.Turn {
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
				rewritten[j] = m.truncateResult(turns, i, block)
			case block.Kind == models.BlockToolCall:
				rewritten[j] = m.truncateCallInputs(block)
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

func (m *FileBased) truncateResult(turns []models.Turn, turnIdx int, block models.ContentBlock) models.ContentBlock {
	result := block.ToolResult
	_, spillable := spillStemFields[result.Name]
	if !spillable || len(result.Parts) > 0 ||
		m.cfg.Counter.CountText(result.Content) < m.spillFloor {
		return replaceToolResultOutput(block, TruncatedOutput)
	}

	rel, err := m.spill(turns, turnIdx, result)
	if err != nil {
		m.cfg.Logger.Warn("spill tool output", "error", err, "tool", result.Name)
		return replaceToolResultOutput(block, TruncatedOutput)
	}
	return replaceToolResultOutput(block, fmt.Sprintf(savedToFileFormat, rel))
}

// spill writes the result content to agent_memory/<stem>_<hash10>.txt and
// returns the workspace-relative path. Writes are idempotent: an existing
// file with the same hash is left alone.
func (m *FileBased) spill(turns []models.Turn, turnIdx int, result *models.ToolResult) (string, error) {
	sum := sha256.Sum256([]byte(result.Content))
	hash10 := hex.EncodeToString(sum[:])[:10]

	stem := m.spillStem(turns, turnIdx, result)
	rel := filepath.Join(agentMemoryDir, fmt.Sprintf("%s_%s.txt", stem, hash10))
	abs := filepath.Join(m.workspaceDir, rel)

	if _, err := os.Stat(abs); err == nil {
		return rel, nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create agent memory dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(result.Content), 0o644); err != nil {
		return "", fmt.Errorf("write agent memory file: %w", err)
	}
	return rel, nil
}

// spillStem derives the filename stem from the originating tool call's url
// or query. The call is expected in the preceding assistant turn; when it is
// missing the stem falls back to "unknown_url".
func (m *FileBased) spillStem(turns []models.Turn, turnIdx int, result *models.ToolResult) string {
	field := spillStemFields[result.Name]
	if turnIdx > 0 {
		for _, b := range turns[turnIdx-1] {
			if b.Kind != models.BlockToolCall || b.ToolCall == nil {
				continue
			}
			if b.ToolCall.ID != result.ToolCallID {
				continue
			}
			if value, ok := b.ToolCall.Input[field].(string); ok && value != "" {
				return sanitizeStem(value)
			}
		}
	}
	return "unknown_url"
}

// sanitizeStem turns a URL or query into a filesystem-safe stem: scheme
// stripped, every non-alphanumeric run collapsed to one underscore, capped
// at 60 characters.
func sanitizeStem(value string) string {
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")
	value = strings.TrimSuffix(value, "/")

	var b strings.Builder
	lastUnderscore := false
	for _, r := range value {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		stem = "unknown_url"
	}
	if len(stem) > 60 {
		stem = stem[:60]
	}
	return stem
}

// truncateCallInputs blanks the designated input fields of a call only when
// at least one of them exceeds the spill floor.
func (m *FileBased) truncateCallInputs(block models.ContentBlock) models.ContentBlock {
	if block.ToolCall == nil {
		return block
	}
	fields, ok := truncatedInputFields[block.ToolCall.Name]
	if !ok {
		return block
	}
	oversized := false
	for _, field := range fields {
		if value, present := block.ToolCall.Input[field].(string); present {
			if m.cfg.Counter.CountText(value) > m.spillFloor {
				oversized = true
				break
			}
		}
	}
	if !oversized {
		return block
	}
	return truncateToolCallInputs(block)
}
