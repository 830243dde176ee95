package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentd/internal/agent"
)

// thought is one recorded thinking step.
type thought struct {
	Thought           string `json:"thought"`
	ThoughtNumber     int    `json:"thoughtNumber"`
	TotalThoughts     int    `json:"totalThoughts"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded"`
	IsRevision        bool   `json:"isRevision,omitempty"`
	RevisesThought    int    `json:"revisesThought,omitempty"`
	BranchFromThought int    `json:"branchFromThought,omitempty"`
	BranchID          string `json:"branchId,omitempty"`
	NeedsMoreThoughts bool   `json:"needsMoreThoughts,omitempty"`
}

// ThinkingTool records a chain of thoughts, including revisions and named
// branches, and reports running totals back to the model.
type ThinkingTool struct {
	mu       sync.Mutex
	history  []thought
	branches map[string][]thought
}

// NewThinkingTool creates the sequential thinking tool.
func NewThinkingTool() *ThinkingTool {
	return &ThinkingTool{branches: make(map[string][]thought)}
}

func (t *ThinkingTool) Name() string { return "sequential_thinking" }

func (t *ThinkingTool) Description() string {
	return `A detailed tool for dynamic and reflective problem-solving through thoughts.
This tool helps analyze problems through a flexible thinking process that can adapt and evolve.
Each thought can build on, question, or revise previous insights as understanding deepens.

When to use this tool:
- Breaking down complex problems into steps
- Planning and design with room for revision
- Analysis that might need course correction
- Problems where the full scope might not be clear initially
- Tasks that need to maintain context over multiple steps

You should:
1. Start with an initial estimate of needed thoughts, but be ready to adjust
2. Feel free to question or revise previous thoughts
3. Mark thoughts that revise previous thinking or branch into new paths
4. Only set nextThoughtNeeded to false when truly done and a satisfactory answer is reached`
}

func (t *ThinkingTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"thought": {"type": "string", "description": "Your current thinking step"},
			"nextThoughtNeeded": {"type": "boolean", "description": "Whether another thought step is needed"},
			"thoughtNumber": {"type": "integer", "description": "Current thought number", "minimum": 1},
			"totalThoughts": {"type": "integer", "description": "Estimated total thoughts needed", "minimum": 1},
			"isRevision": {"type": "boolean", "description": "Whether this revises previous thinking"},
			"revisesThought": {"type": "integer", "description": "Which thought is being reconsidered", "minimum": 1},
			"branchFromThought": {"type": "integer", "description": "Branching point thought number", "minimum": 1},
			"branchId": {"type": "string", "description": "Branch identifier"},
			"needsMoreThoughts": {"type": "boolean", "description": "If more thoughts are needed"}
		},
		"required": ["thought", "nextThoughtNeeded", "thoughtNumber", "totalThoughts"]
	}`)
}

func (t *ThinkingTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input thought
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.Thought == "" {
		return agent.ToolError("Invalid thought: must be a non-empty string"), nil
	}

	// The sequence may run past its estimate; grow the estimate to match.
	if input.ThoughtNumber > input.TotalThoughts {
		input.TotalThoughts = input.ThoughtNumber
	}

	t.mu.Lock()
	t.history = append(t.history, input)
	if input.BranchFromThought > 0 && input.BranchID != "" {
		t.branches[input.BranchID] = append(t.branches[input.BranchID], input)
	}
	branches := make([]string, 0, len(t.branches))
	for id := range t.branches {
		branches = append(branches, id)
	}
	historyLen := len(t.history)
	t.mu.Unlock()

	summary, err := json.MarshalIndent(map[string]any{
		"thoughtNumber":        input.ThoughtNumber,
		"totalThoughts":        input.TotalThoughts,
		"nextThoughtNeeded":    input.NextThoughtNeeded,
		"branches":             branches,
		"thoughtHistoryLength": historyLen,
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	return &agent.ToolResult{
		Content:   string(summary),
		Message:   fmt.Sprintf("Processed thought %d/%d", input.ThoughtNumber, input.TotalThoughts),
		Auxiliary: map[string]any{"thought_number": input.ThoughtNumber},
	}, nil
}
