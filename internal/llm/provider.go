// Package llm defines the model-provider contract the agent loop consumes.
// The loop never branches on provider identity; adapters translate the
// neutral turn/block form to each vendor wire format.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/agentd/pkg/models"
)

// ErrEmptyResponse is returned when a provider yields no content blocks and
// no error; callers substitute a terminal assistant text.
var ErrEmptyResponse = errors.New("provider returned no content")

// ToolParam describes one tool offered to the model.
type ToolParam struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice constrains which tool the model may call.
// Type is "any", "auto", or "tool" (with Name set).
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Request is one generation call. Turns alternate starting with user; the
// adapter derives roles from parity.
type Request struct {
	Turns          []models.Turn
	MaxTokens      int
	SystemPrompt   string
	Temperature    float64
	Tools          []ToolParam
	ToolChoice     *ToolChoice
	ThinkingTokens int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the assistant-side blocks plus usage metadata.
type Response struct {
	Blocks []models.ContentBlock
	Usage  Usage
}

// Provider is a model backend. Implementations must be safe for concurrent
// use; the server issues enhance-prompt calls while runs are in flight.
type Provider interface {
	// Name returns the provider name ("anthropic", "openai").
	Name() string

	// Generate performs one completion call and returns the assistant
	// blocks. Transient failures should be retried internally or surfaced;
	// the loop retries twice more with backoff before giving up.
	Generate(ctx context.Context, req *Request) (*Response, error)
}
