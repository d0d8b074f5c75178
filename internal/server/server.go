package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/harunnryd/shiori/internal/concurrency"
	"github.com/harunnryd/shiori/internal/config"
	"github.com/harunnryd/shiori/internal/mcp"
	"github.com/harunnryd/shiori/internal/tool"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ServerName    = "book_search"
	ServerVersion = "1.0.0"

	StreamPath  = "/sse"
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Server exposes the registered tools to MCP clients over SSE.
type Server struct {
	cfg      *config.ServerConfig
	registry *tool.Registry
	promReg  *prometheus.Registry

	server      *http.Server
	listener    net.Listener
	sse         *mcp.SSEHandler
	metrics     *Metrics
	shutdownTTL time.Duration
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func New(cfg *config.ServerConfig, registry *tool.Registry) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		promReg:  prometheus.NewRegistry(),
	}
}

func (s *Server) Name() string {
	return "ToolServer"
}

func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry == nil {
		return fmt.Errorf("tool registry is required")
	}

	readTimeout, err := config.DurationOrDefault(s.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(s.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(s.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}
	keepAlive, err := config.DurationOrDefault(s.cfg.KeepAlive, config.DefaultServerKeepAlive)
	if err != nil {
		return fmt.Errorf("parse server keep alive: %w", err)
	}

	s.metrics = NewMetrics(s.promReg)
	s.metrics.Initialize(s.registry.Names())

	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: ServerVersion}, &mcpsdk.ServerOptions{
		Logger:    slog.Default(),
		KeepAlive: keepAlive,
	})
	s.sse = mcp.NewSSEHandler(mcpServer, mcp.SSEHandlerOptions{
		OnSessionOpen:  s.metrics.SessionOpened,
		OnSessionClose: s.metrics.SessionClosed,
	})
	tool.NewRunner(s.registry, s.metrics).Mount(mcpServer, s.sse.SessionID)

	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, s.sse.ServeStream)
	mux.HandleFunc(s.sse.MessagesPath(), s.sse.ServeMessage)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	// No WriteTimeout: SSE streams stay open for the life of a session.
	s.server = &http.Server{
		Addr:        net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:     mux,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	s.shutdownTTL = shutdownTimeout

	s.initialized = true
	slog.Info("ToolServer initialized", "component", s.Name(), "addr", s.server.Addr, "tools", s.registry.Names())
	return nil
}

// Handler returns the routed handler. Valid after Init.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Handler
}

// Addr returns the bound listener address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	if s.server != nil {
		return s.server.Addr
	}
	return ""
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("ToolServer not initialized")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	concurrency.SafeGo(s.Name(), func() {
		slog.Info("Tool server listening", "component", s.Name(), "addr", ln.Addr().String(), "stream", StreamPath)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Tool server failed", "component", s.Name(), "error", err)
		}
	}, nil)

	s.started = true
	s.startTime = time.Now()
	slog.Info("ToolServer started", "component", s.Name())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		slog.Info("ToolServer not started, skipping stop", "component", s.Name())
		return nil
	}

	slog.Info("Stopping ToolServer...", "component", s.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTTL)
	defer cancel()

	// Open streams never go idle, so Shutdown alone would wait out the full TTL.
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("ToolServer graceful shutdown incomplete, closing", "component", s.Name(), "error", err)
		if closeErr := s.server.Close(); closeErr != nil {
			return closeErr
		}
	}

	s.started = false
	slog.Info("ToolServer stopped", "component", s.Name())
	return nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Context cancelled, initiating graceful shutdown", "component", s.Name(), "reason", ctx.Err())
	return s.Stop(context.Background())
}

type Health struct {
	Healthy        bool
	ActiveSessions int
	Uptime         time.Duration
	Error          error
}

func (s *Server) Health(ctx context.Context) *Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case !s.initialized:
		return &Health{Error: fmt.Errorf("not initialized")}
	case !s.started:
		return &Health{Error: fmt.Errorf("not started"), ActiveSessions: s.sse.ActiveSessions()}
	}
	return &Health{
		Healthy:        true,
		ActiveSessions: s.sse.ActiveSessions(),
		Uptime:         time.Since(s.startTime),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.Health(r.Context())
	healthResponse := map[string]interface{}{
		"status":          "ok",
		"version":         ServerVersion,
		"active_sessions": health.ActiveSessions,
		"uptime_seconds":  int64(health.Uptime.Seconds()),
		"tools":           s.registry.GetDescriptors(),
	}
	status := http.StatusOK
	if !health.Healthy {
		healthResponse["status"] = "unavailable"
		if health.Error != nil {
			healthResponse["error"] = health.Error.Error()
		}
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(healthResponse)
}
