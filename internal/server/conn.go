package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/agentd/internal/agent"
	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/internal/contextmgr"
	"github.com/haasonsaas/agentd/internal/history"
	"github.com/haasonsaas/agentd/internal/tools/browser"
	"github.com/haasonsaas/agentd/internal/tools/editor"
	"github.com/haasonsaas/agentd/internal/tools/misc"
	"github.com/haasonsaas/agentd/internal/tools/shell"
	"github.com/haasonsaas/agentd/internal/tools/web"
	"github.com/haasonsaas/agentd/internal/workspace"
	"github.com/haasonsaas/agentd/pkg/models"
)

// conn is one websocket connection and its session state.
type conn struct {
	srv  *Server
	sock *websocket.Conn

	sessionID string
	deviceID  string
	ws        *workspace.Manager

	writeMu sync.Mutex

	agent   *agent.Agent
	bus     *bus.Bus
	shell   *shell.Tool
	browser *browser.Controller

	runMu     sync.Mutex
	runActive bool
	runWG     sync.WaitGroup
}

// handleWS owns a connection from upgrade to cleanup.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.metrics.Connections.Inc()

	sessionID := uuid.NewString()
	ws, err := workspace.New(filepath.Join(s.cfg.WorkspaceRoot, sessionID), s.cfg.ContainerWorkspace)
	if err != nil {
		s.logger.Error("create session workspace", "error", err, "session_id", sessionID)
		sock.Close()
		return
	}

	c := &conn{
		srv:       s,
		sock:      sock,
		sessionID: sessionID,
		deviceID:  r.URL.Query().Get("device_id"),
		ws:        ws,
	}
	defer c.cleanup()

	c.send(models.NewEvent(models.EventConnectionEstablished, map[string]any{
		"message":        "Connected to Agent WebSocket Server",
		"workspace_path": ws.Root(),
	}))

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			s.logger.Info("client disconnected", "session_id", sessionID)
			return
		}
		c.dispatch(raw)
	}
}

// send writes one event to the client. Safe for concurrent use; the bus
// drain worker and the read loop both send.
func (c *conn) send(event models.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.srv.metrics.Events.WithLabelValues(string(event.Type)).Inc()
	if event.Type == models.EventToolCall {
		if name, ok := event.Content["tool_name"].(string); ok {
			c.srv.metrics.ToolExecutions.WithLabelValues(name).Inc()
		}
	}
	return c.sock.WriteJSON(event)
}

func (c *conn) sendError(message string) {
	c.send(models.NewEvent(models.EventError, map[string]any{"message": message}))
}

func (c *conn) sendSystem(message string) {
	c.send(models.NewEvent(models.EventSystem, map[string]any{"message": message}))
}

func (c *conn) dispatch(raw []byte) {
	envelope, err := validateEnvelope(raw)
	if err != nil {
		if err == errInvalidJSON {
			c.sendError("Invalid JSON format")
		} else {
			c.sendError(fmt.Sprintf("Error processing request: %v", err))
		}
		return
	}

	switch envelope.Type {
	case "init_agent":
		c.handleInit(envelope.Content)
	case "query":
		c.handleQuery(envelope.Content)
	case "cancel":
		c.handleCancel()
	case "edit_query":
		c.handleEditQuery(envelope.Content)
	case "workspace_info":
		c.send(models.NewEvent(models.EventWorkspaceInfo, map[string]any{"path": c.ws.Root()}))
	case "ping":
		c.send(models.NewEvent(models.EventPong, map[string]any{}))
	case "enhance_prompt":
		c.handleEnhancePrompt(envelope.Content)
	default:
		c.sendError(fmt.Sprintf("Unknown message type: %s", envelope.Type))
	}
}

// toolArgs reads the optional tool_args object of init_agent.
func toolArgs(content map[string]any) (sequentialThinking, deepResearch bool) {
	args, _ := content["tool_args"].(map[string]any)
	sequentialThinking, _ = args["sequential_thinking"].(bool)
	deepResearch, _ = args["deep_research"].(bool)
	return
}

func (c *conn) handleInit(content map[string]any) {
	if c.agent != nil {
		c.send(models.NewEvent(models.EventAgentInitialized, map[string]any{"message": "Agent initialized"}))
		return
	}

	if err := c.srv.store.CreateSession(context.Background(), models.Session{
		ID:           c.sessionID,
		WorkspaceDir: c.ws.Root(),
		CreatedAt:    time.Now(),
		DeviceID:     c.deviceID,
	}); err != nil {
		c.sendError(fmt.Sprintf("Error processing request: %v", err))
		return
	}

	c.bus = bus.New(bus.Config{
		SessionID: c.sessionID,
		Store:     c.srv.store,
		Logger:    c.srv.logger,
	})
	c.bus.AttachClient(c.send)

	sequentialThinking, deepResearch := toolArgs(content)
	tools, err := c.buildTools(sequentialThinking, deepResearch)
	if err != nil {
		c.sendError(fmt.Sprintf("Error processing request: %v", err))
		return
	}
	manager, err := agent.NewToolManager(tools...)
	if err != nil {
		c.sendError(fmt.Sprintf("Error processing request: %v", err))
		return
	}

	prompt := agent.DefaultSystemPrompt
	if sequentialThinking {
		prompt += agent.SequentialThinkingPrompt
	}
	c.agent = agent.New(c.srv.provider, manager, history.New(), c.contextManager(), c.bus, c.ws, agent.Config{
		MaxTurns:               c.srv.cfg.MaxTurns,
		MaxOutputTokensPerTurn: c.srv.cfg.MaxOutputTokens,
		SystemPrompt:           prompt,
		Logger:                 c.srv.logger,
	})

	c.srv.logger.Info("agent initialized", "session_id", c.sessionID, "workspace", c.ws.Root())
	c.send(models.NewEvent(models.EventAgentInitialized, map[string]any{"message": "Agent initialized"}))
}

func (c *conn) contextManager() contextmgr.Manager {
	cfg := contextmgr.Config{
		TokenBudget: c.srv.cfg.TokenBudget,
		Logger:      c.srv.logger,
	}
	if c.srv.cfg.ContextManager == "file-based" {
		return contextmgr.NewFileBased(cfg, c.ws.Root())
	}
	return contextmgr.NewStandard(cfg)
}

func (c *conn) buildTools(sequentialThinking, deepResearch bool) ([]agent.Tool, error) {
	var filters []shell.CommandFilter
	if c.srv.cfg.DockerContainerID != "" {
		filters = append(filters, &shell.DockerFilter{Container: c.srv.cfg.DockerContainerID})
	}
	bashTool, err := shell.New(shell.Config{
		Workspace: c.ws,
		Filters:   filters,
		Timeout:   c.srv.cfg.ShellTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	c.shell = bashTool

	c.browser = browser.NewController(browser.Config{
		Headless: c.srv.cfg.Headless,
		Logger:   c.srv.logger,
	})

	webCfg := web.ClientConfig{Logger: c.srv.logger}
	tools := []agent.Tool{
		bashTool,
		editor.New(editor.Config{Workspace: c.ws, Bus: c.bus}),
		misc.NewCompleteTool(),
		misc.NewMessageTool(),
		web.NewSearchTool(webCfg),
		web.NewVisitTool(webCfg),
	}
	if sequentialThinking {
		tools = append(tools, misc.NewThinkingTool())
	}
	if deepResearch {
		tools = append(tools, web.NewResearchTool(webCfg))
	}
	tools = append(tools, browser.NewTools(c.browser, c.bus)...)
	return tools, nil
}

func (c *conn) handleQuery(content map[string]any) {
	if c.agent == nil {
		c.sendError("Agent not initialized for this connection")
		return
	}
	text, _ := content["text"].(string)
	resume, _ := content["resume"].(bool)
	c.startRun(text, stringSlice(content["files"]), resume)
}

func (c *conn) handleCancel() {
	if c.agent == nil {
		c.sendError("No active agent for this connection")
		return
	}
	c.agent.Cancel()
	c.sendSystem("Query cancelled")
}

func (c *conn) handleEditQuery(content map[string]any) {
	if c.agent == nil {
		c.sendError("No active agent for this connection")
		return
	}

	c.agent.Cancel()
	c.agent.WaitIdle()
	c.agent.History().ClearFromLastUserPrompt()

	if err := c.srv.store.DeleteEventsFromLastUserMessage(context.Background(), c.sessionID); err != nil {
		c.srv.logger.Error("delete session events", "error", err, "session_id", c.sessionID)
		c.sendError(fmt.Sprintf("Error clearing history: %v", err))
	} else {
		c.sendSystem("Session history cleared from last event to last user message")
	}
	c.sendSystem("Query editing mode activated")

	text, _ := content["text"].(string)
	resume, _ := content["resume"].(bool)
	c.startRun(text, stringSlice(content["files"]), resume)
}

// startRun launches one agent run. Rejected when a run is in flight.
func (c *conn) startRun(text string, files []string, resume bool) {
	c.runMu.Lock()
	if c.runActive {
		c.runMu.Unlock()
		c.sendError("A query is already being processed")
		return
	}
	c.runActive = true
	c.runWG.Add(1)
	c.runMu.Unlock()

	// Persist the user message; the bus skips forwarding it back.
	c.bus.Publish(models.NewEvent(models.EventUserMessage, map[string]any{"text": text}))

	go func() {
		defer func() {
			c.runMu.Lock()
			c.runActive = false
			c.runMu.Unlock()
			c.runWG.Done()
		}()
		if _, err := c.agent.Run(context.Background(), text, files, resume); err != nil {
			// The run loop already published the error event.
			c.srv.logger.Error("agent run failed", "error", err, "session_id", c.sessionID)
		}
	}()
}

func (c *conn) handleEnhancePrompt(content map[string]any) {
	text, _ := content["text"].(string)
	files := stringSlice(content["files"])

	enhanced, err := enhancePrompt(context.Background(), c.srv.provider, text, files)
	if err != nil {
		c.sendError(fmt.Sprintf("Error enhancing prompt: %v", err))
		return
	}
	c.send(models.NewEvent(models.EventPromptGenerated, map[string]any{
		"result":           enhanced,
		"original_request": text,
	}))
}

// cleanup detaches the client and, once any in-flight run finishes,
// releases the session's resources. Persistence continues until then.
func (c *conn) cleanup() {
	c.sock.Close()
	if c.bus == nil {
		return
	}
	c.bus.DetachClient()
	go func() {
		c.runWG.Wait()
		c.bus.Close()
		if c.shell != nil {
			c.shell.Close()
		}
		if c.browser != nil {
			c.browser.Close()
		}
	}()
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
