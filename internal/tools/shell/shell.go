// Package shell implements the bash tool: a persistent interactive shell
// behind a pty, with command filters for SSH and Docker execution and a
// banned-substring guard.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/agentd/internal/agent"
	"github.com/haasonsaas/agentd/internal/workspace"
)

const timeoutText = "Command timed out. Please try again."

// defaultBanned are substrings refused in every configuration. The agent
// must not manipulate version control on the user's behalf.
var defaultBanned = []string{"git init", "git commit", "git add"}

// Config configures the bash tool.
type Config struct {
	// Workspace is the session workspace; the shell starts in its root.
	Workspace *workspace.Manager

	// Filters transform commands before execution, applied left-to-right.
	Filters []CommandFilter

	// Timeout is the per-command deadline. Default: 60s.
	Timeout time.Duration

	// BannedCommands extends the default banned substrings.
	BannedCommands []string

	// Confirm, when set, is asked before every command; a false return
	// cancels execution.
	Confirm func(command string) bool
}

// Tool is the bash tool. One persistent shell per instance.
type Tool struct {
	cfg    Config
	banned []string

	mu   sync.Mutex
	sess *session
}

// New creates the bash tool and starts its shell.
func New(cfg Config) (*Tool, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	banned := append([]string{}, defaultBanned...)
	banned = append(banned, cfg.BannedCommands...)

	workdir := ""
	if cfg.Workspace != nil {
		workdir = cfg.Workspace.Root()
	}
	sess, err := startSession(cfg.Timeout, workdir)
	if err != nil {
		return nil, err
	}
	return &Tool{cfg: cfg, banned: banned, sess: sess}, nil
}

// Close tears down the persistent shell.
func (t *Tool) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sess != nil {
		t.sess.close()
		t.sess = nil
	}
}

func (t *Tool) Name() string { return "bash" }

func (t *Tool) Description() string {
	return `Run commands in a bash shell
* When invoking this tool, the contents of the "command" parameter does NOT need to be XML-escaped.
* State is persistent across command calls and discussions with the user.
* To inspect a particular line range of a file, e.g. lines 10-25, try 'sed -n 10,25p /path/to/the/file'.
* Please avoid commands that may produce a very large amount of output.
* Please run long lived commands in the background, e.g. 'sleep 10 &' or start a server in the background.`
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The bash command to run."}
		},
		"required": ["command"]
	}`)
}

// ApplyFilters runs the configured filter chain over a command.
func (t *Tool) ApplyFilters(command string) string {
	for _, f := range t.cfg.Filters {
		command = f.FilterCommand(command)
	}
	return command
}

func (t *Tool) bannedIn(command string) string {
	for _, s := range t.banned {
		if strings.Contains(command, s) {
			return s
		}
	}
	return ""
}

func (t *Tool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}

	command := t.ApplyFilters(input.Command)
	aux := map[string]any{
		"original_command": input.Command,
		"executed_command": command,
	}

	if banned := t.bannedIn(command); banned != "" {
		msg := fmt.Sprintf("Command not executed due to banned string in command: %s found in %s.", banned, command)
		return &agent.ToolResult{Content: msg, Message: msg, Auxiliary: aux, IsError: true}, nil
	}

	if t.cfg.Confirm != nil && !t.cfg.Confirm(command) {
		return &agent.ToolResult{
			Content:   "Command not executed due to lack of user confirmation.",
			Message:   "Command execution cancelled",
			Auxiliary: aux,
			IsError:   true,
		}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureSession(); err != nil {
		return nil, err
	}

	output, err := t.sess.run(command)
	if err != nil {
		if errors.Is(err, errTimeout) {
			t.restartSession()
			return &agent.ToolResult{Content: timeoutText, Message: timeoutText, Auxiliary: aux, IsError: true}, nil
		}
		t.restartSession()
		return &agent.ToolResult{
			Content:   fmt.Sprintf("Error executing command: %v", err),
			Message:   fmt.Sprintf("Failed to execute command '%s'", input.Command),
			Auxiliary: aux,
			IsError:   true,
		}, nil
	}

	return &agent.ToolResult{
		Content:   output,
		Message:   fmt.Sprintf("Command '%s' executed.", command),
		Auxiliary: aux,
	}, nil
}

// ensureSession probes the current shell and replaces it when wedged.
// Callers hold t.mu.
func (t *Tool) ensureSession() error {
	if t.sess != nil && t.sess.probe() {
		return nil
	}
	return t.restartSession()
}

// restartSession replaces the shell process. Callers hold t.mu.
func (t *Tool) restartSession() error {
	if t.sess != nil {
		t.sess.close()
		t.sess = nil
	}
	workdir := ""
	if t.cfg.Workspace != nil {
		workdir = t.cfg.Workspace.Root()
	}
	sess, err := startSession(t.cfg.Timeout, workdir)
	if err != nil {
		return fmt.Errorf("restart shell: %w", err)
	}
	t.sess = sess
	return nil
}

