package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentd/internal/config"
	"github.com/haasonsaas/agentd/internal/server"
	"github.com/haasonsaas/agentd/internal/storage"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket session server",
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

			srv := server.New(provider, store, server.Config{
				WorkspaceRoot:      cfg.WorkspaceRoot,
				ContainerWorkspace: cfg.ContainerWorkspace,
				DockerContainerID:  cfg.DockerContainerID,
				ContextManager:     cfg.ContextManager,
				TokenBudget:        cfg.TokenBudget,
				MaxTurns:           cfg.MaxTurns,
				MaxOutputTokens:    cfg.MaxOutputTokens,
				ShellTimeout:       cfg.ShellTimeout,
				Headless:           cfg.Headless,
				Logger:             logger,
			})
			return srv.ListenAndServe(cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
