// Package agent implements the turn loop: the state machine that alternates
// model generation and tool execution until the completion tool fires, the
// turn budget runs out, or the user cancels.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haasonsaas/agentd/internal/backoff"
	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/internal/contextmgr"
	"github.com/haasonsaas/agentd/internal/history"
	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/internal/workspace"
	"github.com/haasonsaas/agentd/pkg/models"
)

// interruptedText is appended as the tool result (or assistant text) when a
// cancellation is observed mid-run. The history stays well-formed so the
// session can resume.
const interruptedText = "Tool execution was interrupted by user."

// maxTurnsText is the terminal response when the turn budget is exhausted.
const maxTurnsText = "Agent did not complete after max turns"

// providerAttempts is the total number of tries per model call (one call
// plus two retries with jittered backoff).
const providerAttempts = 3

// Config configures an Agent.
type Config struct {
	// MaxTurns limits model/tool iterations per run.
	// Default: 200.
	MaxTurns int

	// MaxOutputTokensPerTurn caps each model response.
	// Default: 32768.
	MaxOutputTokensPerTurn int

	// SystemPrompt is sent with every model call.
	SystemPrompt string

	// Logger receives run diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 200
	}
	if cfg.MaxOutputTokensPerTurn <= 0 {
		cfg.MaxOutputTokensPerTurn = 32768
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Agent drives one session's conversation. All mutation of the history
// happens on the running goroutine; Cancel is the only concurrent entry
// point and only flips a flag read at suspension points.
type Agent struct {
	provider llm.Provider
	tools    *ToolManager
	history  *history.History
	ctxmgr   contextmgr.Manager
	bus      *bus.Bus
	ws       *workspace.Manager
	cfg      Config

	interrupted atomic.Bool
	running     atomic.Bool

	// runMu serializes runs and lets edit-query wait for an interrupted run
	// to release the history before rewinding it.
	runMu sync.Mutex
}

// New creates an agent.
func New(provider llm.Provider, tools *ToolManager, hist *history.History, mgr contextmgr.Manager, eventBus *bus.Bus, ws *workspace.Manager, cfg Config) *Agent {
	return &Agent{
		provider: provider,
		tools:    tools,
		history:  hist,
		ctxmgr:   mgr,
		bus:      eventBus,
		ws:       ws,
		cfg:      sanitizeConfig(cfg),
	}
}

// Cancel requests cooperative cancellation of the in-flight run. In-flight
// model and tool calls are allowed to return; the loop observes the flag at
// its next suspension point.
func (a *Agent) Cancel() {
	a.interrupted.Store(true)
}

// Running reports whether a run is in flight.
func (a *Agent) Running() bool {
	return a.running.Load()
}

// History exposes the conversation log for edit-query. Callers must hold no
// run in flight (Cancel first, then WaitIdle).
func (a *Agent) History() *history.History {
	return a.history
}

// WaitIdle blocks until no run holds the history. Acquiring the run lock is
// the synchronization; there is nothing to do while holding it.
func (a *Agent) WaitIdle() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
}

// Run executes one instruction to completion and returns the final response
// text. Non-fatal conditions (max turns, interruption) return their
// diagnostic text with a nil error; fatal conditions return a *RunError.
func (a *Agent) Run(ctx context.Context, instruction string, files []string, resume bool) (string, error) {
	if a.provider == nil {
		return "", ErrNoProvider
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.running.Store(true)
	defer a.running.Store(false)
	a.interrupted.Store(false)

	if !resume {
		a.history.Clear()
	} else if !a.history.IsNextTurnUser() {
		return "", a.fatal(0, fmt.Errorf("%w: resume requires a user turn next", history.ErrInvariant))
	}

	text, images := a.buildPrompt(instruction, files)
	if err := a.history.AddUserPrompt(text, images); err != nil {
		return "", a.fatal(0, err)
	}

	a.bus.Publish(models.NewEvent(models.EventProcessing, map[string]any{}))

	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		if a.interrupted.Load() {
			return a.finishInterrupted(turn)
		}

		if err := a.history.SetTurns(a.ctxmgr.ApplyTruncationIfNeeded(a.history.Turns())); err != nil {
			return "", a.fatal(turn, err)
		}

		blocks, err := a.generate(ctx)
		if err != nil {
			return "", a.fatal(turn, err)
		}
		if len(blocks) == 0 {
			blocks = models.Turn{models.AssistantText("Completed.")}
		}
		if err := a.history.AddAssistantTurn(blocks); err != nil {
			return "", a.fatal(turn, err)
		}
		a.publishThinking(blocks)

		pending := a.history.PendingToolCalls()
		if len(pending) == 0 {
			response := a.history.LastAssistantText()
			a.respond(response)
			return response, nil
		}
		if len(pending) > 1 {
			return "", a.fatal(turn, ErrMultipleToolCalls)
		}

		call := pending[0]
		a.bus.Publish(models.NewEvent(models.EventToolCall, map[string]any{
			"tool_call_id": call.ID,
			"tool_name":    call.Name,
			"tool_input":   call.Input,
		}))

		var result *ToolResult
		if a.interrupted.Load() {
			result = &ToolResult{Content: interruptedText}
		} else {
			result = a.tools.Execute(ctx, call)
		}
		if a.interrupted.Load() {
			result = &ToolResult{Content: interruptedText}
		}

		if err := a.history.AddToolCallResult(call, result.ToModelResult(call)); err != nil {
			return "", a.fatal(turn, err)
		}
		a.bus.Publish(models.NewEvent(models.EventToolResult, map[string]any{
			"tool_call_id": call.ID,
			"tool_name":    call.Name,
			"result":       resultPreview(result),
			"is_error":     result.IsError,
		}))

		if a.interrupted.Load() {
			return a.finishInterrupted(turn)
		}

		if result.ShouldStop {
			answer := result.Content
			if answer == "" {
				answer = "Task completed"
			}
			if err := a.history.AddAssistantTurn(models.Turn{models.AssistantText("Completed.")}); err != nil {
				return "", a.fatal(turn, err)
			}
			a.respond(answer)
			return answer, nil
		}
	}

	a.respond(maxTurnsText)
	return maxTurnsText, nil
}

// generate performs the model call with retry. Transient provider failures
// get two more attempts before the run fails.
func (a *Agent) generate(ctx context.Context) (models.Turn, error) {
	req := &llm.Request{
		Turns:        a.history.Turns(),
		MaxTokens:    a.cfg.MaxOutputTokensPerTurn,
		SystemPrompt: a.cfg.SystemPrompt,
		Tools:        a.tools.Params(),
	}
	var resp *llm.Response
	err := backoff.Retry(ctx, providerAttempts, backoff.DefaultPolicy(), func() error {
		var callErr error
		resp, callErr = a.provider.Generate(ctx, req)
		if callErr != nil {
			a.cfg.Logger.Warn("provider call failed", "error", callErr, "provider", a.provider.Name())
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.provider.Name(), err)
	}
	return resp.Blocks, nil
}

// buildPrompt assembles the user turn: an attached-files listing appended to
// the instruction, and inline image blocks for image-suffixed files.
func (a *Agent) buildPrompt(instruction string, files []string) (string, []models.ContentBlock) {
	if len(files) == 0 {
		return instruction, nil
	}

	var listing strings.Builder
	listing.WriteString(instruction)
	listing.WriteString("\n\nAttached files:\n")
	var images []models.ContentBlock
	for _, file := range files {
		fmt.Fprintf(&listing, "- %s\n", file)
		mediaType, ok := imageMediaType(file)
		if !ok {
			continue
		}
		data, err := os.ReadFile(a.ws.WorkspacePath(file))
		if err != nil {
			a.cfg.Logger.Warn("read attached image", "error", err, "file", file)
			continue
		}
		images = append(images, models.Image(mediaType, base64.StdEncoding.EncodeToString(data)))
	}
	return listing.String(), images
}

func imageMediaType(file string) (string, bool) {
	switch strings.ToLower(path.Ext(file)) {
	case ".png":
		return "image/png", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".gif":
		return "image/gif", true
	case ".webp":
		return "image/webp", true
	default:
		return "", false
	}
}

// finishInterrupted closes out a run cancelled before the next model call.
func (a *Agent) finishInterrupted(turn int) (string, error) {
	if a.history.IsNextTurnAssistant() {
		if err := a.history.AddAssistantTurn(models.Turn{models.AssistantText(interruptedText)}); err != nil {
			return "", a.fatal(turn, err)
		}
	}
	a.respond(interruptedText)
	return interruptedText, nil
}

func (a *Agent) respond(text string) {
	a.bus.Publish(models.NewEvent(models.EventAgentResponse, map[string]any{"text": text}))
}

func (a *Agent) publishThinking(blocks models.Turn) {
	for _, b := range blocks {
		if b.Kind == models.BlockThinking && b.Text != "" {
			a.bus.Publish(models.NewEvent(models.EventAgentThinking, map[string]any{"text": b.Text}))
		}
	}
}

// fatal publishes an error event and wraps the cause.
func (a *Agent) fatal(turn int, cause error) error {
	a.bus.Publish(models.NewEvent(models.EventError, map[string]any{"message": cause.Error()}))
	return &RunError{Turn: turn, Cause: cause}
}

// resultPreview is the event payload form of a tool result: the string
// output, or a placeholder plus summary for multi-part payloads.
func resultPreview(result *ToolResult) any {
	if len(result.Parts) == 0 {
		return result.Content
	}
	preview := map[string]any{"parts": len(result.Parts)}
	if result.Message != "" {
		preview["message"] = result.Message
	}
	for k, v := range result.Auxiliary {
		preview[k] = v
	}
	return preview
}
