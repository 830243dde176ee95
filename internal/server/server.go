// Package server exposes the agent runtime over a websocket session
// protocol plus a small REST surface for uploads and session history.
// One websocket connection owns one session: its workspace directory, its
// event bus, and at most one running agent.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/internal/storage"
)

// Config configures the session server.
type Config struct {
	// WorkspaceRoot is the parent directory of per-session workspaces.
	WorkspaceRoot string

	// ContainerWorkspace is the in-container workspace mount, when set.
	ContainerWorkspace string

	// DockerContainerID routes shell commands through docker exec.
	DockerContainerID string

	// ContextManager selects "standard" or "file-based".
	ContextManager string

	// TokenBudget caps conversation size. Default: 120000.
	TokenBudget int

	// MaxTurns limits model/tool iterations per run. Default: 200.
	MaxTurns int

	// MaxOutputTokens caps each model response. Default: 32768.
	MaxOutputTokens int

	// ShellTimeout bounds each shell command.
	ShellTimeout time.Duration

	// Headless controls browser visibility.
	Headless bool

	Logger *slog.Logger
}

func sanitizeConfig(cfg Config) Config {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "workspace"
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 120_000
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 200
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 32_768
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Server is the websocket + REST frontend.
type Server struct {
	cfg      Config
	provider llm.Provider
	store    *storage.Store
	logger   *slog.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	upgrader websocket.Upgrader
}

// New creates a server over the given provider and store.
func New(provider llm.Provider, store *storage.Store, cfg Config) *Server {
	cfg = sanitizeConfig(cfg)
	metrics, registry := NewMetrics()
	return &Server{
		cfg:      cfg,
		provider: provider,
		store:    store,
		logger:   cfg.Logger,
		metrics:  metrics,
		registry: registry,
		upgrader: websocket.Upgrader{
			// The protocol is device-scoped, not origin-scoped.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the full route set.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/sessions/{device_id}", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{session_id}/events", s.handleEvents)
	mux.Handle("/workspace/", http.StripPrefix("/workspace/", http.FileServer(http.Dir(s.cfg.WorkspaceRoot))))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe runs the server on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}
