package models

import "encoding/json"

// BlockKind discriminates the content block union.
type BlockKind string

// Content block kinds. User turns carry user_text and image blocks;
// assistant turns carry the rest.
const (
	BlockUserText         BlockKind = "user_text"
	BlockImage            BlockKind = "image"
	BlockAssistantText    BlockKind = "assistant_text"
	BlockToolCall         BlockKind = "tool_call"
	BlockToolResult       BlockKind = "tool_result"
	BlockThinking         BlockKind = "thinking"
	BlockRedactedThinking BlockKind = "redacted_thinking"
)

// ToolCall is a model request to execute a tool.
type ToolCall struct {
	// ID uniquely identifies the call within the conversation.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input contains the decoded tool arguments.
	Input map[string]any `json:"input"`
}

// RawInput returns the call input re-encoded as JSON for schema validation
// and tool execution.
func (tc ToolCall) RawInput() json.RawMessage {
	if tc.Input == nil {
		return json.RawMessage(`{}`)
	}
	payload, err := json.Marshal(tc.Input)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}

// ToolResultPart is one element of a multi-part tool output.
// Type is "text" or "image".
type ToolResultPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextPart builds a text output part.
func TextPart(text string) ToolResultPart {
	return ToolResultPart{Type: "text", Text: text}
}

// ImagePart builds an image output part from base64 data.
func ImagePart(mediaType, data string) ToolResultPart {
	return ToolResultPart{Type: "image", MediaType: mediaType, Data: data}
}

// ToolResult answers a ToolCall. Either Content (plain string output) or
// Parts (image+text payloads) is set; Parts wins when both are present.
type ToolResult struct {
	ToolCallID string           `json:"tool_call_id"`
	Name       string           `json:"name"`
	Content    string           `json:"content,omitempty"`
	Parts      []ToolResultPart `json:"parts,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
}

// ContentBlock is a tagged union of the block kinds above. Exactly the
// fields for the given Kind are populated.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	// Text holds user_text, assistant_text, and thinking text.
	Text string `json:"text,omitempty"`

	// MediaType and Data describe an image block (base64 payload).
	// Data also carries the opaque payload of redacted_thinking blocks.
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	// Signature accompanies thinking blocks.
	Signature string `json:"signature,omitempty"`

	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// UserText builds a user text block.
func UserText(text string) ContentBlock {
	return ContentBlock{Kind: BlockUserText, Text: text}
}

// Image builds a user image block from base64 data.
func Image(mediaType, data string) ContentBlock {
	return ContentBlock{Kind: BlockImage, MediaType: mediaType, Data: data}
}

// AssistantText builds an assistant text block.
func AssistantText(text string) ContentBlock {
	return ContentBlock{Kind: BlockAssistantText, Text: text}
}

// ToolCallBlock wraps a tool call as an assistant block.
func ToolCallBlock(call ToolCall) ContentBlock {
	return ContentBlock{Kind: BlockToolCall, ToolCall: &call}
}

// ToolResultBlock wraps a tool result as a user block.
func ToolResultBlock(result ToolResult) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolResult: &result}
}

// Thinking builds an assistant thinking block.
func Thinking(text, signature string) ContentBlock {
	return ContentBlock{Kind: BlockThinking, Text: text, Signature: signature}
}

// RedactedThinking wraps an opaque redacted thinking payload.
func RedactedThinking(data string) ContentBlock {
	return ContentBlock{Kind: BlockRedactedThinking, Data: data}
}

// IsUserSide reports whether the block may appear in a user turn.
func (b ContentBlock) IsUserSide() bool {
	switch b.Kind {
	case BlockUserText, BlockImage, BlockToolResult:
		return true
	default:
		return false
	}
}

// IsAssistantSide reports whether the block may appear in an assistant turn.
func (b ContentBlock) IsAssistantSide() bool {
	switch b.Kind {
	case BlockAssistantText, BlockToolCall, BlockThinking, BlockRedactedThinking:
		return true
	default:
		return false
	}
}

// Turn is an ordered list of content blocks from a single speaker.
type Turn []ContentBlock
