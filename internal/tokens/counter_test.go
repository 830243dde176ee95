package tokens

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/pkg/models"
)

func encodePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestCountText(t *testing.T) {
	c := NewCounter()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact multiple", "abcdef", 2},
		{"rounds up", "abcdefg", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.CountText(tt.text))
		})
	}
}

func TestCountImageByArea(t *testing.T) {
	c := NewCounter()

	data := encodePNG(t, 150, 100)
	assert.Equal(t, 150*100/750, c.CountImage(data))
}

func TestCountImageFallback(t *testing.T) {
	c := NewCounter()

	assert.Equal(t, fallbackImageTokens, c.CountImage("not-base64!!"))
	assert.Equal(t, fallbackImageTokens, c.CountImage(base64.StdEncoding.EncodeToString([]byte("not an image"))))
}

func TestCountBlockToolResultParts(t *testing.T) {
	c := NewCounter()

	img := encodePNG(t, 300, 150)
	block := models.ToolResultBlock(models.ToolResult{
		ToolCallID: "tc1",
		Name:       "browser_click",
		Parts: []models.ToolResultPart{
			models.ImagePart("image/png", img),
			models.TextPart("clicked element 3"),
		},
	})

	want := 300*150/750 + c.CountText("clicked element 3")
	assert.Equal(t, want, c.CountBlock(block))
}

func TestCountTurnsSkipsEarlierThinking(t *testing.T) {
	c := NewCounter()

	thinking := models.Thinking("some long reasoning text here", "sig")
	turns := []models.Turn{
		{models.UserText("question")},
		{thinking, models.AssistantText("answer")},
		{models.UserText("follow-up")},
	}

	withThinking := c.CountBlock(thinking) + c.CountText("question") +
		c.CountText("answer") + c.CountText("follow-up")
	got := c.CountTurns(turns)
	assert.Equal(t, withThinking-c.CountBlock(thinking), got)

	// Thinking in the final turn does count.
	turns2 := []models.Turn{
		{models.UserText("question")},
		{thinking, models.AssistantText("answer")},
	}
	assert.Equal(t, c.CountText("question")+c.CountBlock(thinking)+c.CountText("answer"), c.CountTurns(turns2))
}

func TestCountMonotonicInContentSize(t *testing.T) {
	c := NewCounter()

	small := models.Turn{models.UserText("abc")}
	large := models.Turn{models.UserText("abcdefghij")}
	assert.Less(t, c.CountTurn(small), c.CountTurn(large))
}
