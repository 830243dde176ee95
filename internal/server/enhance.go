package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/pkg/models"
)

const enhanceSystemPrompt = `You are an expert at enhancing user requests into detailed, specific prompts.
Your task is to expand the user's brief request into a comprehensive prompt that will help an AI assistant understand exactly what is needed.
Include specific details, requirements, and context that would be helpful.
Format your response as a single, well-structured prompt without explanations or meta-commentary.`

const (
	enhanceTemperature = 0.7
	enhanceMaxTokens   = 2048
)

// enhancePrompt performs the one-shot rewrite call behind enhance_prompt.
func enhancePrompt(ctx context.Context, provider llm.Provider, userInput string, files []string) (string, error) {
	var fileContext strings.Builder
	if len(files) > 0 {
		fileContext.WriteString("Referenced files:\n")
		for _, file := range files {
			fmt.Fprintf(&fileContext, "- %s\n", strings.TrimLeft(file, "."))
		}
	}

	req := &llm.Request{
		Turns: []models.Turn{{models.UserText(fmt.Sprintf(
			"Enhance this request into a detailed prompt: %s\n\nAdditional context - %s",
			userInput, fileContext.String(),
		))}},
		SystemPrompt: enhanceSystemPrompt,
		Temperature:  enhanceTemperature,
		MaxTokens:    enhanceMaxTokens,
	}
	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("enhance prompt: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Blocks {
		if block.Kind == models.BlockAssistantText {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("enhance prompt: %w", llm.ErrEmptyResponse)
	}
	return sb.String(), nil
}
