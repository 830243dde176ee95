package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentd/pkg/models"
)

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Echo struct{}
//
//	func (e *Echo) Name() string        { return "echo" }
//	func (e *Echo) Description() string { return "Echoes its input back." }
//
//	func (e *Echo) Schema() json.RawMessage {
//	    return json.RawMessage(`{
//	        "type": "object",
//	        "properties": {"text": {"type": "string"}},
//	        "required": ["text"]
//	    }`)
//	}
//
//	func (e *Echo) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    var input struct{ Text string `json:"text"` }
//	    json.Unmarshal(params, &input)
//	    return &ToolResult{Content: input.Text}, nil
//	}
type Tool interface {
	// Name returns the tool name for model function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters. It is
	// compiled once at registration and validated before every Execute.
	Schema() json.RawMessage

	// Execute runs the tool. Tool-level failures should be reported as an
	// error ToolResult, not a Go error, so the model can self-correct.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the output of one tool execution.
type ToolResult struct {
	// Content is the plain string output.
	Content string `json:"content"`

	// Parts carries multi-part (image+text) output; when set it supersedes
	// Content in the conversation.
	Parts []models.ToolResultPart `json:"parts,omitempty"`

	// Message is a short human-readable summary for events and logs.
	Message string `json:"message,omitempty"`

	// Auxiliary carries extra structured data for event payloads.
	Auxiliary map[string]any `json:"auxiliary,omitempty"`

	// IsError marks a failed execution.
	IsError bool `json:"is_error,omitempty"`

	// ShouldStop terminates the run; set by the completion tool.
	ShouldStop bool `json:"should_stop,omitempty"`
}

// ToModelResult converts the execution output to its conversation form.
func (r *ToolResult) ToModelResult(call models.ToolCall) models.ToolResult {
	return models.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    r.Content,
		Parts:      r.Parts,
		IsError:    r.IsError,
	}
}

// ToolError builds an error result with the given message as output.
func ToolError(message string) *ToolResult {
	return &ToolResult{Content: message, IsError: true}
}
