// Package config resolves the runtime configuration once at startup:
// optional .env, optional YAML file, then environment overrides, then
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	// Provider selects the model backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	// Model is the model id passed to the provider.
	Model string `yaml:"model"`

	// TokenBudget caps conversation size before truncation.
	TokenBudget int `yaml:"token_budget"`

	// MaxTurns limits model/tool iterations per run.
	MaxTurns int `yaml:"max_turns"`

	// MaxOutputTokens caps each model response.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// ContextManager selects "standard" or "file-based".
	ContextManager string `yaml:"context_manager"`

	// WorkspaceRoot is the parent directory of per-session workspaces.
	WorkspaceRoot string `yaml:"workspace_root"`

	// ContainerWorkspace is the in-container mount of the workspace when
	// tools run inside a container.
	ContainerWorkspace string `yaml:"container_workspace"`

	// DockerContainerID routes shell commands through docker exec.
	DockerContainerID string `yaml:"docker_container_id"`

	// ShellTimeout bounds each shell command.
	ShellTimeout time.Duration `yaml:"shell_timeout"`

	// NeedsPermission enables interactive shell confirmation (chat only).
	NeedsPermission bool `yaml:"needs_permission"`

	// ListenAddr is the server bind address.
	ListenAddr string `yaml:"listen_addr"`

	// DatabasePath is the sqlite file location.
	DatabasePath string `yaml:"database_path"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// Headless controls browser visibility.
	Headless bool `yaml:"headless"`
}

// Load resolves the configuration. A .env file in the working directory is
// applied first when present; path, when non-empty, names a YAML file whose
// values the environment then overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Provider != "anthropic" && cfg.Provider != "openai" {
		return Config{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Provider, "AGENTD_PROVIDER")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Model, "AGENTD_MODEL")
	setInt(&c.TokenBudget, "AGENTD_TOKEN_BUDGET")
	setInt(&c.MaxTurns, "AGENTD_MAX_TURNS")
	setInt(&c.MaxOutputTokens, "AGENTD_MAX_OUTPUT_TOKENS")
	setString(&c.ContextManager, "AGENTD_CONTEXT_MANAGER")
	setString(&c.WorkspaceRoot, "AGENTD_WORKSPACE")
	setString(&c.ContainerWorkspace, "AGENTD_CONTAINER_WORKSPACE")
	setString(&c.DockerContainerID, "AGENTD_DOCKER_CONTAINER_ID")
	setDuration(&c.ShellTimeout, "AGENTD_SHELL_TIMEOUT")
	setBool(&c.NeedsPermission, "AGENTD_NEEDS_PERMISSION")
	setString(&c.ListenAddr, "AGENTD_LISTEN_ADDR")
	setString(&c.DatabasePath, "AGENTD_DATABASE_PATH")
	setString(&c.LogLevel, "AGENTD_LOG_LEVEL")
	setBool(&c.Headless, "AGENTD_HEADLESS")
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		if c.AnthropicAPIKey == "" && c.OpenAIAPIKey != "" {
			c.Provider = "openai"
		} else {
			c.Provider = "anthropic"
		}
	}
	if c.Model == "" {
		if c.Provider == "openai" {
			c.Model = "gpt-4o"
		} else {
			c.Model = "claude-sonnet-4-20250514"
		}
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = 120_000
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 200
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 32_768
	}
	if c.ContextManager == "" {
		c.ContextManager = "file-based"
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "workspace"
	}
	if c.ShellTimeout <= 0 {
		c.ShellTimeout = 60 * time.Second
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:8000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "agentd.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
