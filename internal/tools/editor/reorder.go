package editor

import (
	"sort"
	"strings"

	"github.com/haasonsaas/agentd/pkg/models"
)

// ReorderCalls arranges concurrent editor calls so inserts run before
// replacements, inserts apply in ascending line order, and later insert
// lines are shifted by the lines added before them. Applying the reordered
// calls sequentially is equivalent to applying the originals concurrently
// against the starting file.
func ReorderCalls(calls []models.ToolCall) []models.ToolCall {
	ordered := make([]models.ToolCall, len(calls))
	copy(ordered, calls)

	sort.SliceStable(ordered, func(i, j int) bool {
		iInsert := command(ordered[i]) == "insert"
		jInsert := command(ordered[j]) == "insert"
		if iInsert != jInsert {
			return iInsert
		}
		return insertLine(ordered[i]) < insertLine(ordered[j])
	})

	shift := 0
	for _, call := range ordered {
		if command(call) != "insert" {
			continue
		}
		line, hasLine := call.Input["insert_line"]
		newStr, hasStr := call.Input["new_str"].(string)
		if !hasLine || !hasStr {
			continue
		}
		call.Input["insert_line"] = toInt(line) + shift
		shift += len(strings.Split(newStr, "\n"))
	}
	return ordered
}

func command(call models.ToolCall) string {
	cmd, _ := call.Input["command"].(string)
	return cmd
}

func insertLine(call models.ToolCall) int {
	return toInt(call.Input["insert_line"])
}

// toInt handles both decoded-JSON float64 and native int inputs.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
