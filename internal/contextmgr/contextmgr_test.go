package contextmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/pkg/models"
)

// historyWithBigOutputs builds n user/assistant turn pairs where each user
// turn answers a bash call with a large output.
func historyWithBigOutputs(n, size int) []models.Turn {
	var turns []models.Turn
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("tc%d", i)
		turns = append(turns,
			models.Turn{models.ToolCallBlock(models.ToolCall{
				ID: id, Name: "bash", Input: map[string]any{"command": "cat big.txt"},
			})},
			models.Turn{models.ToolResultBlock(models.ToolResult{
				ToolCallID: id, Name: "bash", Content: strings.Repeat("x", size),
			})},
		)
	}
	// Prepend the opening user prompt so parity holds (user turns even).
	return append([]models.Turn{{models.UserText("go")}}, turns...)
}

func TestStandardNoTruncationUnderBudget(t *testing.T) {
	m := NewStandard(Config{TokenBudget: 1 << 30})
	turns := historyWithBigOutputs(5, 5000)
	out := m.ApplyTruncationIfNeeded(turns)
	assert.Equal(t, turns, out)
}

func TestStandardTruncatesOlderTurns(t *testing.T) {
	m := NewStandard(Config{TokenBudget: 1000})
	turns := historyWithBigOutputs(5, 5000)

	before := m.CountTokens(turns)
	require.Greater(t, before, 1000)

	out := m.ApplyTruncationIfNeeded(turns)
	require.Len(t, out, len(turns))

	after := m.CountTokens(out)
	assert.LessOrEqual(t, after, before)

	// Last 3 turns are bit-identical to the input.
	for i := len(turns) - 3; i < len(turns); i++ {
		assert.Equal(t, turns[i], out[i], "turn %d must be preserved", i)
	}

	// Every older tool result got the sentinel.
	for i := 0; i < len(out)-3; i++ {
		for _, b := range out[i] {
			if b.Kind == models.BlockToolResult {
				assert.Equal(t, TruncatedOutput, b.ToolResult.Content)
				assert.Empty(t, b.ToolResult.Parts)
			}
		}
	}

	// Input is not mutated.
	assert.Equal(t, strings.Repeat("x", 5000), turns[2][0].ToolResult.Content)
}

func TestStandardTruncatesDesignatedInputs(t *testing.T) {
	m := NewStandard(Config{TokenBudget: 10})
	turns := []models.Turn{
		{models.UserText("edit it")},
		{models.ToolCallBlock(models.ToolCall{
			ID: "tc1", Name: "str_replace_editor",
			Input: map[string]any{
				"command": "str_replace", "path": "a.txt",
				"old_str": "aaa", "new_str": "bbb",
			},
		})},
		{models.ToolResultBlock(models.ToolResult{ToolCallID: "tc1", Name: "str_replace_editor", Content: strings.Repeat("y", 500)})},
		{models.AssistantText("done")},
		{models.UserText("next")},
		{models.AssistantText(strings.Repeat("z", 200))},
		{models.UserText("more")},
	}

	out := m.ApplyTruncationIfNeeded(turns)
	call := out[1][0].ToolCall
	assert.Equal(t, TruncatedInputOutput, call.Input["old_str"])
	assert.Equal(t, TruncatedInputOutput, call.Input["new_str"])
	// Fields outside the designated set are untouched.
	assert.Equal(t, "str_replace", call.Input["command"])
	assert.Equal(t, "a.txt", call.Input["path"])
	// Original input map not mutated.
	assert.Equal(t, "aaa", turns[1][0].ToolCall.Input["old_str"])
}

func TestFileBasedSpillsVisitWebpage(t *testing.T) {
	ws := t.TempDir()
	m := NewFileBased(Config{TokenBudget: 100}, ws)

	content := strings.Repeat("page text ", 1000) // 10000 chars, well past the floor
	turns := []models.Turn{
		{models.UserText("read the page")},
		{models.ToolCallBlock(models.ToolCall{
			ID: "tc1", Name: "visit_webpage",
			Input: map[string]any{"url": "https://example.com/foo"},
		})},
		{models.ToolResultBlock(models.ToolResult{ToolCallID: "tc1", Name: "visit_webpage", Content: content})},
		{models.AssistantText("summarizing")},
		{models.UserText("thanks")},
		{models.AssistantText("done")},
		{models.UserText("bye")},
	}

	out := m.ApplyTruncationIfNeeded(turns)

	sum := sha256.Sum256([]byte(content))
	hash10 := hex.EncodeToString(sum[:])[:10]
	rel := filepath.Join("agent_memory", "example_com_foo_"+hash10+".txt")

	got := out[2][0].ToolResult.Content
	assert.Equal(t, fmt.Sprintf("[Truncated...content saved to %s. You can view it if needed.]", rel), got)

	saved, err := os.ReadFile(filepath.Join(ws, rel))
	require.NoError(t, err)
	assert.Equal(t, content, string(saved))

	// Idempotent: a second pass leaves the file alone.
	info1, err := os.Stat(filepath.Join(ws, rel))
	require.NoError(t, err)
	_ = m.ApplyTruncationIfNeeded(turns)
	info2, err := os.Stat(filepath.Join(ws, rel))
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestFileBasedUnknownURLFallback(t *testing.T) {
	ws := t.TempDir()
	m := NewFileBased(Config{TokenBudget: 100}, ws)

	content := strings.Repeat("research ", 1000)
	// The preceding turn carries no matching tool call.
	turns := []models.Turn{
		{models.UserText("hm")},
		{models.AssistantText("no call here")},
		{models.ToolResultBlock(models.ToolResult{ToolCallID: "tc9", Name: "visit_webpage", Content: content})},
		{models.AssistantText("a")},
		{models.UserText("b")},
		{models.AssistantText("c")},
		{models.UserText("d")},
	}

	out := m.ApplyTruncationIfNeeded(turns)
	assert.Contains(t, out[2][0].ToolResult.Content, "agent_memory/unknown_url_")
}

func TestFileBasedSmallOutputsGetSentinel(t *testing.T) {
	ws := t.TempDir()
	m := NewFileBased(Config{TokenBudget: 10}, ws)

	turns := []models.Turn{
		{models.UserText("read")},
		{models.ToolCallBlock(models.ToolCall{ID: "tc1", Name: "visit_webpage", Input: map[string]any{"url": "https://a.io"}})},
		{models.ToolResultBlock(models.ToolResult{ToolCallID: "tc1", Name: "visit_webpage", Content: "short"})},
		{models.AssistantText("a")},
		{models.UserText("b")},
		{models.AssistantText(strings.Repeat("c", 100))},
		{models.UserText("d")},
	}

	out := m.ApplyTruncationIfNeeded(turns)
	assert.Equal(t, TruncatedOutput, out[2][0].ToolResult.Content)

	entries, err := os.ReadDir(filepath.Join(ws, "agent_memory"))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestFileBasedNonSpillToolGetsSentinel(t *testing.T) {
	ws := t.TempDir()
	m := NewFileBased(Config{TokenBudget: 100}, ws)
	turns := historyWithBigOutputs(4, 9000)

	out := m.ApplyTruncationIfNeeded(turns)
	for i := 0; i < len(out)-3; i++ {
		for _, b := range out[i] {
			if b.Kind == models.BlockToolResult {
				assert.Equal(t, TruncatedOutput, b.ToolResult.Content)
			}
		}
	}
}

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/foo", "example_com_foo"},
		{"http://a.io/b/c?q=1", "a_io_b_c_q_1"},
		{"what is the capital of France", "what_is_the_capital_of_France"},
		{"///", "unknown_url"},
		{strings.Repeat("a", 100), strings.Repeat("a", 60)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeStem(tt.in), tt.in)
	}
}

func TestSpillFloorExceedsSentinelLength(t *testing.T) {
	// Reachability: spilling must never grow the turn.
	sentinel := fmt.Sprintf(savedToFileFormat, "agent_memory/"+strings.Repeat("a", 60)+"_0123456789.txt")
	assert.Greater(t, defaultSpillFloor, len(sentinel))
}
