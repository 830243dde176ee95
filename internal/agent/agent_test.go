package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/internal/contextmgr"
	"github.com/haasonsaas/agentd/internal/history"
	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/internal/workspace"
	"github.com/haasonsaas/agentd/pkg/models"
)

// scriptedProvider returns queued turns, one per Generate call.
type scriptedProvider struct {
	mu    sync.Mutex
	turns []models.Turn
	err   error
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.turns) == 0 {
		return &llm.Response{Blocks: []models.ContentBlock{models.AssistantText("out of script")}}, nil
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]
	return &llm.Response{Blocks: turn}, nil
}

// recordingStore captures persisted events.
type recordingStore struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingStore) AppendEvent(_ context.Context, _ string, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingStore) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// echoTool returns its command input, optionally blocking until released.
type echoTool struct {
	block chan struct{}
}

func (t *echoTool) Name() string        { return "bash" }
func (t *echoTool) Description() string { return "Run a command." }

func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`)
}

func (t *echoTool) Execute(_ context.Context, params json.RawMessage) (*ToolResult, error) {
	if t.block != nil {
		<-t.block
	}
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ToolError(err.Error()), nil
	}
	return &ToolResult{Content: "OK"}, nil
}

// stopTool is the completion tool.
type stopTool struct{}

func (t *stopTool) Name() string        { return "complete" }
func (t *stopTool) Description() string { return "Signal completion." }

func (t *stopTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}}
	}`)
}

func (t *stopTool) Execute(_ context.Context, params json.RawMessage) (*ToolResult, error) {
	var input struct {
		Answer string `json:"answer"`
	}
	_ = json.Unmarshal(params, &input)
	if input.Answer == "" {
		input.Answer = "Task completed"
	}
	return &ToolResult{Content: input.Answer, ShouldStop: true}, nil
}

type fixture struct {
	agent    *Agent
	bus      *bus.Bus
	store    *recordingStore
	provider *scriptedProvider
}

func newFixture(t *testing.T, provider *scriptedProvider, tools ...Tool) *fixture {
	t.Helper()
	store := &recordingStore{}
	b := bus.New(bus.Config{SessionID: "s1", Store: store})
	tm, err := NewToolManager(tools...)
	require.NoError(t, err)
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)
	a := New(provider, tm, history.New(), contextmgr.NewStandard(contextmgr.Config{}), b, ws, Config{MaxTurns: 10})
	return &fixture{agent: a, bus: b, store: store, provider: provider}
}

func toolCallTurn(id, name string, input map[string]any) models.Turn {
	return models.Turn{models.ToolCallBlock(models.ToolCall{ID: id, Name: name, Input: input})}
}

func TestOneShotCompletion(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		toolCallTurn("tc1", "bash", map[string]any{"command": "echo OK"}),
		toolCallTurn("tc2", "complete", map[string]any{"answer": "Done"}),
	}}
	f := newFixture(t, provider, &echoTool{}, &stopTool{})

	text, err := f.agent.Run(context.Background(), "echo OK", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "Done", text)

	f.bus.Close()
	assert.Equal(t, []models.EventType{
		models.EventProcessing,
		models.EventToolCall,
		models.EventToolResult,
		models.EventToolCall,
		models.EventToolResult,
		models.EventAgentResponse,
	}, f.store.types())

	// History ends with the terminal assistant turn.
	assert.True(t, f.agent.History().IsNextTurnUser())
}

func TestPlainResponseEndsRun(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		{models.AssistantText("just an answer")},
	}}
	f := newFixture(t, provider, &echoTool{}, &stopTool{})

	text, err := f.agent.Run(context.Background(), "hi", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "just an answer", text)
	assert.Equal(t, 1, provider.calls)
}

func TestEmptyBlocksSubstituted(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{{}}}
	f := newFixture(t, provider, &stopTool{})

	text, err := f.agent.Run(context.Background(), "hi", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "Completed.", text)
}

func TestSchemaInvalidInputRecovers(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		// Missing required "command".
		toolCallTurn("tc1", "bash", map[string]any{"cmd": "oops"}),
		toolCallTurn("tc2", "complete", map[string]any{"answer": "fixed"}),
	}}
	f := newFixture(t, provider, &echoTool{}, &stopTool{})

	text, err := f.agent.Run(context.Background(), "go", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "fixed", text)

	// The invalid input came back to the model as an error result.
	turns := f.agent.History().Turns()
	result := turns[2][0].ToolResult
	require.NotNil(t, result)
	assert.Contains(t, result.Content, "Invalid tool input: ")
}

func TestMultipleToolCallsFatal(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		{
			models.ToolCallBlock(models.ToolCall{ID: "tc1", Name: "bash", Input: map[string]any{"command": "a"}}),
			models.ToolCallBlock(models.ToolCall{ID: "tc2", Name: "bash", Input: map[string]any{"command": "b"}}),
		},
	}}
	f := newFixture(t, provider, &echoTool{}, &stopTool{})

	_, err := f.agent.Run(context.Background(), "go", nil, false)
	assert.ErrorIs(t, err, ErrMultipleToolCalls)

	f.bus.Close()
	types := f.store.types()
	assert.Equal(t, models.EventError, types[len(types)-1])
}

func TestMaxTurnsDiagnostic(t *testing.T) {
	// The provider keeps calling bash forever.
	var turns []models.Turn
	for i := 0; i < 20; i++ {
		turns = append(turns, toolCallTurn("tc", "bash", map[string]any{"command": "again"}))
	}
	provider := &scriptedProvider{turns: turns}
	f := newFixture(t, provider, &echoTool{}, &stopTool{})

	text, err := f.agent.Run(context.Background(), "loop", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "Agent did not complete after max turns", text)
	assert.Equal(t, 10, provider.calls)
}

func TestProviderErrorFatalAfterRetries(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("upstream 500")}
	f := newFixture(t, provider, &stopTool{})

	_, err := f.agent.Run(context.Background(), "go", nil, false)
	require.Error(t, err)
	var runErr *RunError
	assert.ErrorAs(t, err, &runErr)
	assert.Equal(t, providerAttempts, provider.calls)
}

func TestCancelDuringToolThenResume(t *testing.T) {
	block := make(chan struct{})
	tool := &echoTool{block: block}
	provider := &scriptedProvider{turns: []models.Turn{
		toolCallTurn("tc1", "bash", map[string]any{"command": "sleep 30"}),
		toolCallTurn("tc2", "complete", map[string]any{"answer": "resumed fine"}),
	}}
	f := newFixture(t, provider, tool, &stopTool{})

	type runOutcome struct {
		text string
		err  error
	}
	done := make(chan runOutcome, 1)
	go func() {
		text, err := f.agent.Run(context.Background(), "long task", nil, false)
		done <- runOutcome{text, err}
	}()

	// Let the run reach the tool, then cancel and release the tool.
	time.Sleep(50 * time.Millisecond)
	f.agent.Cancel()
	close(block)

	select {
	case outcome := <-done:
		require.NoError(t, outcome.err)
		assert.Equal(t, interruptedText, outcome.text)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not observe cancellation")
	}

	// The interrupted history resumes without invariant errors.
	tool.block = nil
	text, err := f.agent.Run(context.Background(), "continue", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "resumed fine", text)
}

func TestResumeRequiresUserTurnNext(t *testing.T) {
	provider := &scriptedProvider{}
	f := newFixture(t, provider, &stopTool{})

	// Seed a dangling assistant turn directly.
	require.NoError(t, f.agent.History().AddUserPrompt("q", nil))

	_, err := f.agent.Run(context.Background(), "more", nil, true)
	assert.ErrorIs(t, err, history.ErrInvariant)
}

func TestDuplicateToolNamesFatalAtConstruction(t *testing.T) {
	_, err := NewToolManager(&echoTool{}, &echoTool{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestToolManagerUnknownTool(t *testing.T) {
	tm, err := NewToolManager(&echoTool{})
	require.NoError(t, err)

	result := tm.Execute(context.Background(), models.ToolCall{ID: "x", Name: "nope"})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "tool not found")
}
