// Package misc contains the small session-control tools: completion,
// direct user messaging, and structured sequential thinking.
package misc

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentd/internal/agent"
)

// CompleteTool terminates the run. The answer is optional; calls without one
// complete with a generic message.
type CompleteTool struct{}

// NewCompleteTool creates the completion tool.
func NewCompleteTool() *CompleteTool { return &CompleteTool{} }

func (t *CompleteTool) Name() string { return "complete" }

func (t *CompleteTool) Description() string {
	return "Call this tool when you are done with the task. Optionally provide a final answer for the user."
}

func (t *CompleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"answer": {"type": "string", "description": "The final answer to report to the user"}
		},
		"required": []
	}`)
}

func (t *CompleteTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.Answer == "" {
		input.Answer = "Task completed"
	}
	return &agent.ToolResult{
		Content:    input.Answer,
		Message:    input.Answer,
		ShouldStop: true,
	}, nil
}
