package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/agentd/internal/agent"
	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/internal/config"
	"github.com/haasonsaas/agentd/internal/contextmgr"
	"github.com/haasonsaas/agentd/internal/history"
	"github.com/haasonsaas/agentd/internal/storage"
	"github.com/haasonsaas/agentd/internal/tools/browser"
	"github.com/haasonsaas/agentd/internal/tools/editor"
	"github.com/haasonsaas/agentd/internal/tools/misc"
	"github.com/haasonsaas/agentd/internal/tools/shell"
	"github.com/haasonsaas/agentd/internal/tools/web"
	"github.com/haasonsaas/agentd/internal/workspace"
	"github.com/haasonsaas/agentd/pkg/models"
)

func buildChatCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive terminal session",
		Long: `Run the agent as a terminal REPL. Type a request and press enter;
Ctrl-C cancels the current run, "exit" or "quit" ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			provider, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID := uuid.NewString()
			ws, err := workspace.New(filepath.Join(cfg.WorkspaceRoot, sessionID), cfg.ContainerWorkspace)
			if err != nil {
				return err
			}
			if err := store.CreateSession(cmd.Context(), models.Session{
				ID:           sessionID,
				WorkspaceDir: ws.Root(),
				CreatedAt:    time.Now(),
				DeviceID:     "cli",
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			stdin := bufio.NewReader(cmd.InOrStdin())

			eventBus := bus.New(bus.Config{SessionID: sessionID, Store: store, Logger: logger})
			defer eventBus.Close()
			eventBus.AttachClient(printEvent(out))

			var filters []shell.CommandFilter
			if cfg.DockerContainerID != "" {
				filters = append(filters, &shell.DockerFilter{Container: cfg.DockerContainerID})
			}
			var confirm func(string) bool
			if cfg.NeedsPermission && term.IsTerminal(int(os.Stdin.Fd())) {
				confirm = confirmCommand(stdin, out)
			}
			bashTool, err := shell.New(shell.Config{
				Workspace: ws,
				Filters:   filters,
				Timeout:   cfg.ShellTimeout,
				Confirm:   confirm,
			})
			if err != nil {
				return err
			}
			defer bashTool.Close()

			ctrl := browser.NewController(browser.Config{Headless: cfg.Headless, Logger: logger})
			defer ctrl.Close()

			webCfg := web.ClientConfig{Logger: logger}
			tools := []agent.Tool{
				bashTool,
				editor.New(editor.Config{Workspace: ws, Bus: eventBus}),
				misc.NewCompleteTool(),
				misc.NewMessageTool(),
				misc.NewThinkingTool(),
				web.NewSearchTool(webCfg),
				web.NewVisitTool(webCfg),
				web.NewResearchTool(webCfg),
			}
			tools = append(tools, browser.NewTools(ctrl, eventBus)...)
			manager, err := agent.NewToolManager(tools...)
			if err != nil {
				return err
			}

			var mgr contextmgr.Manager
			mgrCfg := contextmgr.Config{TokenBudget: cfg.TokenBudget, Logger: logger}
			if cfg.ContextManager == "file-based" {
				mgr = contextmgr.NewFileBased(mgrCfg, ws.Root())
			} else {
				mgr = contextmgr.NewStandard(mgrCfg)
			}

			ag := agent.New(provider, manager, history.New(), mgr, eventBus, ws, agent.Config{
				MaxTurns:               cfg.MaxTurns,
				MaxOutputTokensPerTurn: cfg.MaxOutputTokens,
				SystemPrompt:           agent.DefaultSystemPrompt + agent.SequentialThinkingPrompt,
				Logger:                 logger,
			})

			fmt.Fprintf(out, "Workspace: %s\nType a request, \"exit\" to quit.\n", ws.Root())
			return repl(ag, stdin, out)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// repl reads requests line by line and runs one agent turn per line. An
// interrupt signal cancels the running turn without ending the session.
func repl(ag *agent.Agent, in *bufio.Reader, out io.Writer) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	first := true
	for {
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-sigCh:
				fmt.Fprintln(out, "\nCancelling...")
				ag.Cancel()
			case <-done:
			}
		}()

		answer, err := ag.Run(context.Background(), line, nil, !first)
		close(done)
		first = false
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n", answer)
	}
}

// printEvent renders bus events for the terminal. The final answer is
// printed by the REPL itself, so agent_response is skipped here.
func printEvent(out io.Writer) bus.ClientSender {
	return func(event models.Event) error {
		switch event.Type {
		case models.EventToolCall:
			fmt.Fprintf(out, "[tool] %v\n", event.Content["tool_name"])
		case models.EventToolResult:
			if isErr, _ := event.Content["is_error"].(bool); isErr {
				fmt.Fprintf(out, "[tool error] %v\n", event.Content["result"])
			}
		case models.EventAgentThinking:
			fmt.Fprintf(out, "[thinking] %v\n", event.Content["text"])
		case models.EventError:
			fmt.Fprintf(out, "[error] %v\n", event.Content["message"])
		case models.EventSystem:
			fmt.Fprintf(out, "[system] %v\n", event.Content["message"])
		}
		return nil
	}
}

func confirmCommand(in *bufio.Reader, out io.Writer) func(string) bool {
	return func(command string) bool {
		fmt.Fprintf(out, "Run command? %q [y/N] ", command)
		answer, err := in.ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}
