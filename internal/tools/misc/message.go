package misc

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentd/internal/agent"
)

// MessageTool relays text to the user mid-run.
type MessageTool struct{}

// NewMessageTool creates the user-messaging tool.
func NewMessageTool() *MessageTool { return &MessageTool{} }

func (t *MessageTool) Name() string { return "message_user" }

func (t *MessageTool) Description() string {
	return `Send a message to the user. Use this tool to communicate effectively in a variety of scenarios, including:
* Sharing your current thoughts or reasoning process
* Asking clarifying or follow-up questions
* Acknowledging receipt of messages
* Providing real-time progress updates
* Reporting completion of tasks or milestones
* Explaining changes in strategy, unexpected behavior, or encountered issues`
}

func (t *MessageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "The message to send to the user"}
		},
		"required": ["text"]
	}`)
}

func (t *MessageTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.Text == "" {
		return agent.ToolError("message text must not be empty"), nil
	}
	return &agent.ToolResult{Content: input.Text, Message: input.Text}, nil
}
