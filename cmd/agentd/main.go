// Package main provides the CLI entry point for the agentd agent runtime.
//
// Start the websocket session server:
//
//	agentd serve --config agentd.yaml
//
// Run an interactive terminal session:
//
//	agentd chat
//
// Configuration comes from an optional YAML file, AGENTD_* environment
// variables, and a .env file in the working directory. API keys are read
// from ANTHROPIC_API_KEY and OPENAI_API_KEY.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentd/internal/config"
	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/internal/llm/providers"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentd",
		Short: "agentd - autonomous tool-using agent runtime",
		Long: `agentd runs an autonomous agent that works inside a dedicated workspace
using shell, file editing, web and browser tools.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
	)
	return rootCmd
}

// setupLogger installs the process-wide logger at the configured level.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func buildProvider(cfg config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:           cfg.AnthropicAPIKey,
			DefaultModel:     cfg.Model,
			DefaultMaxTokens: cfg.MaxOutputTokens,
		}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:           cfg.OpenAIAPIKey,
			DefaultModel:     cfg.Model,
			DefaultMaxTokens: cfg.MaxOutputTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
