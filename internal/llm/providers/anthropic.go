// Package providers contains llm.Provider adapters for the supported model
// backends.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	// Obtain from: https://console.anthropic.com/
	APIKey string

	// BaseURL overrides the API endpoint (optional).
	BaseURL string

	// DefaultModel is used when requests do not specify one.
	DefaultModel string

	// DefaultMaxTokens is used when requests do not specify a limit.
	// Default: 4096.
	DefaultMaxTokens int
}

// AnthropicProvider adapts the Anthropic Messages API to llm.Provider.
type AnthropicProvider struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(config AnthropicConfig) *AnthropicProvider {
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	if config.DefaultMaxTokens <= 0 {
		config.DefaultMaxTokens = 4096
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(options...),
		config: config,
	}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate performs one Messages API call.
func (p *AnthropicProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	messages, err := p.convertTurns(req.Turns)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.DefaultModel),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		params.ToolChoice = convertAnthropicToolChoice(*req.ToolChoice)
	}
	if req.ThinkingTokens > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingTokens))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	blocks := make([]models.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, models.AssistantText(block.Text))
		case "tool_use":
			var input map[string]any
			if err := json.Unmarshal(block.Input, &input); err != nil {
				return nil, fmt.Errorf("anthropic: decode tool input for %s: %w", block.Name, err)
			}
			blocks = append(blocks, models.ToolCallBlock(models.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			}))
		case "thinking":
			blocks = append(blocks, models.Thinking(block.Thinking, block.Signature))
		case "redacted_thinking":
			blocks = append(blocks, models.RedactedThinking(block.Data))
		}
	}

	return &llm.Response{
		Blocks: blocks,
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// convertTurns maps neutral turns to Anthropic messages. Roles follow
// parity: even indices are user, odd are assistant.
func (p *AnthropicProvider) convertTurns(turns []models.Turn) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(turns))
	for i, turn := range turns {
		var content []anthropic.ContentBlockParamUnion
		for _, block := range turn {
			switch block.Kind {
			case models.BlockUserText, models.BlockAssistantText:
				content = append(content, anthropic.NewTextBlock(block.Text))
			case models.BlockImage:
				content = append(content, anthropic.NewImageBlockBase64(block.MediaType, block.Data))
			case models.BlockToolCall:
				content = append(content, anthropic.NewToolUseBlock(
					block.ToolCall.ID,
					block.ToolCall.Input,
					block.ToolCall.Name,
				))
			case models.BlockToolResult:
				content = append(content, convertAnthropicToolResult(*block.ToolResult))
			case models.BlockThinking:
				content = append(content, anthropic.NewThinkingBlock(block.Signature, block.Text))
			case models.BlockRedactedThinking:
				content = append(content, anthropic.NewRedactedThinkingBlock(block.Data))
			default:
				return nil, fmt.Errorf("unsupported block kind %q", block.Kind)
			}
		}
		if i%2 == 0 {
			result = append(result, anthropic.NewUserMessage(content...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicToolResult(result models.ToolResult) anthropic.ContentBlockParamUnion {
	if len(result.Parts) == 0 {
		return anthropic.NewToolResultBlock(result.ToolCallID, result.Content, result.IsError)
	}
	block := anthropic.ToolResultBlockParam{ToolUseID: result.ToolCallID}
	if result.IsError {
		block.IsError = anthropic.Bool(true)
	}
	for _, part := range result.Parts {
		switch part.Type {
		case "image":
			block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							MediaType: anthropic.Base64ImageSourceMediaType(part.MediaType),
							Data:      part.Data,
						},
					},
				},
			})
		default:
			block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: part.Text},
			})
		}
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

func convertAnthropicTools(tools []llm.ToolParam) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func convertAnthropicToolChoice(choice llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Type {
	case "any":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "tool":
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}
