package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/pkg/models"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// BaseURL overrides the API endpoint (optional, for compatible servers).
	BaseURL string

	// DefaultModel is used when requests do not specify one.
	DefaultModel string

	// DefaultMaxTokens is used when requests do not specify a limit.
	// Default: 4096.
	DefaultMaxTokens int
}

// OpenAIProvider adapts the Chat Completions API to llm.Provider.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	if config.DefaultMaxTokens <= 0 {
		config.DefaultMaxTokens = 4096
	}
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		config: config,
	}
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate performs one chat completion call.
func (p *OpenAIProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	messages, err := p.convertTurns(req.Turns, req.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.DefaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:               p.config.DefaultModel,
		Messages:            messages,
		MaxCompletionTokens: maxTokens,
		Temperature:         float32(req.Temperature),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}
	if req.ToolChoice != nil {
		chatReq.ToolChoice = convertOpenAIToolChoice(*req.ToolChoice)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.ErrEmptyResponse
	}

	choice := resp.Choices[0].Message
	var blocks []models.ContentBlock
	if choice.Content != "" {
		blocks = append(blocks, models.AssistantText(choice.Content))
	}
	for _, call := range choice.ToolCalls {
		var input map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("openai: decode tool arguments for %s: %w", call.Function.Name, err)
			}
		}
		blocks = append(blocks, models.ToolCallBlock(models.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		}))
	}

	return &llm.Response{
		Blocks: blocks,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// convertTurns maps neutral turns to chat messages. Tool results become
// role "tool" messages keyed by tool_call_id; image parts of tool results
// are inlined as user image messages since the tool role is text-only.
func (p *OpenAIProvider) convertTurns(turns []models.Turn, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for i, turn := range turns {
		if i%2 == 0 {
			msgs, err := convertOpenAIUserTurn(turn)
			if err != nil {
				return nil, err
			}
			result = append(result, msgs...)
		} else {
			msg, err := convertOpenAIAssistantTurn(turn)
			if err != nil {
				return nil, err
			}
			result = append(result, msg)
		}
	}
	return result, nil
}

func convertOpenAIUserTurn(turn models.Turn) ([]openai.ChatCompletionMessage, error) {
	var out []openai.ChatCompletionMessage
	var parts []openai.ChatMessagePart

	for _, block := range turn {
		switch block.Kind {
		case models.BlockUserText:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: block.Text,
			})
		case models.BlockImage:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", block.MediaType, block.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case models.BlockToolResult:
			res := block.ToolResult
			content := res.Content
			for _, part := range res.Parts {
				switch part.Type {
				case "text":
					content += part.Text
				case "image":
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", part.MediaType, part.Data),
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: res.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("unsupported block kind %q in user turn", block.Kind)
		}
	}

	if len(parts) > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		})
	}
	return out, nil
}

func convertOpenAIAssistantTurn(turn models.Turn) (openai.ChatCompletionMessage, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
	for _, block := range turn {
		switch block.Kind {
		case models.BlockAssistantText:
			msg.Content += block.Text
		case models.BlockToolCall:
			args, err := json.Marshal(block.ToolCall.Input)
			if err != nil {
				return msg, fmt.Errorf("encode tool arguments for %s: %w", block.ToolCall.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   block.ToolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolCall.Name,
					Arguments: string(args),
				},
			})
		case models.BlockThinking, models.BlockRedactedThinking:
			// Chat Completions has no thinking channel; dropped.
		default:
			return msg, fmt.Errorf("unsupported block kind %q in assistant turn", block.Kind)
		}
	}
	return msg, nil
}

func convertOpenAITools(tools []llm.ToolParam) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		}
	}
	return result
}

func convertOpenAIToolChoice(choice llm.ToolChoice) any {
	switch choice.Type {
	case "any":
		return "required"
	case "tool":
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.Name},
		}
	default:
		return "auto"
	}
}
