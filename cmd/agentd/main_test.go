package main

import (
	"testing"

	"github.com/haasonsaas/agentd/internal/config"
)

func testConfig(provider string) config.Config {
	return config.Config{Provider: provider, Model: "test-model", MaxOutputTokens: 1024}
}

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "chat"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildProviderRejectsMissingKey(t *testing.T) {
	cfg := testConfig("anthropic")
	if _, err := buildProvider(cfg); err == nil {
		t.Fatal("expected error for missing API key")
	}

	cfg = testConfig("openai")
	if _, err := buildProvider(cfg); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBuildProviderSelectsBackend(t *testing.T) {
	cfg := testConfig("anthropic")
	cfg.AnthropicAPIKey = "sk-test"
	provider, err := buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Fatalf("expected anthropic provider, got %q", provider.Name())
	}

	cfg = testConfig("openai")
	cfg.OpenAIAPIKey = "sk-test"
	provider, err = buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if provider.Name() != "openai" {
		t.Fatalf("expected openai provider, got %q", provider.Name())
	}
}
