// Package tokens provides cheap token estimation for context budgeting.
// Estimates are not exact; they only need to be monotonic in content size.
package tokens

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/haasonsaas/agentd/pkg/models"
)

const (
	// charsPerToken approximates text tokens as ceil(len/3).
	charsPerToken = 3

	// pixelsPerToken approximates image tokens as (w*h)/750.
	pixelsPerToken = 750

	// fallbackImageTokens is charged when image data cannot be decoded.
	fallbackImageTokens = 1500
)

// Counter estimates token counts for content blocks.
type Counter struct{}

// NewCounter returns a Counter.
func NewCounter() *Counter {
	return &Counter{}
}

// CountText estimates tokens in a string.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// CountImage estimates tokens for a base64 image by pixel area. Data that
// does not decode as PNG/JPEG/GIF is charged a flat fallback.
func (c *Counter) CountImage(data string) int {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fallbackImageTokens
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return fallbackImageTokens
	}
	return cfg.Width * cfg.Height / pixelsPerToken
}

// CountBlock estimates tokens for a single content block.
func (c *Counter) CountBlock(block models.ContentBlock) int {
	switch block.Kind {
	case models.BlockUserText, models.BlockAssistantText, models.BlockThinking:
		return c.CountText(block.Text)
	case models.BlockImage:
		return c.CountImage(block.Data)
	case models.BlockToolResult:
		if block.ToolResult == nil {
			return 0
		}
		return c.countToolResult(*block.ToolResult)
	default:
		return c.countJSON(block)
	}
}

func (c *Counter) countToolResult(result models.ToolResult) int {
	if len(result.Parts) == 0 {
		return c.CountText(result.Content)
	}
	total := 0
	for _, part := range result.Parts {
		switch part.Type {
		case "image":
			total += c.CountImage(part.Data)
		case "text":
			total += c.CountText(part.Text)
		default:
			total += c.countJSON(part)
		}
	}
	return total
}

func (c *Counter) countJSON(v any) int {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return c.CountText(string(payload))
}

// CountTurn sums block estimates over a turn.
func (c *Counter) CountTurn(turn models.Turn) int {
	total := 0
	for _, block := range turn {
		total += c.CountBlock(block)
	}
	return total
}

// CountTurns sums estimates over a list of turns. Thinking blocks count only
// in the final turn; providers drop earlier thinking on subsequent calls.
func (c *Counter) CountTurns(turns []models.Turn) int {
	total := 0
	for i, turn := range turns {
		last := i == len(turns)-1
		for _, block := range turn {
			if !last && (block.Kind == models.BlockThinking || block.Kind == models.BlockRedactedThinking) {
				continue
			}
			total += c.CountBlock(block)
		}
	}
	return total
}
