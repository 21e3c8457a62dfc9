package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/codex-k8s/tool-relay/internal/dsl"
	"github.com/codex-k8s/tool-relay/internal/http/health"
	"github.com/codex-k8s/tool-relay/internal/http/respond"
	"github.com/codex-k8s/tool-relay/internal/protocol"
	"github.com/codex-k8s/tool-relay/internal/timeutil"
)

// Routes are the handlers mounted by the relay.
type Routes struct {
	// Stream serves the push channel.
	Stream http.Handler
	// Dispatch serves correlated requests.
	Dispatch http.Handler
	// Tools lists the capability table.
	Tools func() []protocol.ToolInfo
	// Sessions reports the open session count for readiness.
	Sessions func() int
	// Metrics serves Prometheus metrics. Optional.
	Metrics http.Handler
	// MCP serves the MCP endpoint. Optional.
	MCP http.Handler
	// OnShutdown runs when graceful shutdown begins.
	OnShutdown []func()
}

// App controls the HTTP server lifecycle.
type App struct {
	baseCtx         context.Context
	server          *http.Server
	router          *mux.Router
	health          *health.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New initializes the HTTP server with relay routes and health endpoints.
func New(baseCtx context.Context, serverCfg dsl.ServerConfig, routes Routes, logger *slog.Logger, shutdownTimeout time.Duration) (*App, error) {
	if routes.Stream == nil || routes.Dispatch == nil {
		return nil, fmt.Errorf("stream and dispatch handlers are required")
	}
	if baseCtx == nil {
		return nil, fmt.Errorf("base context is nil")
	}

	healthHandler := health.New(routes.Sessions)
	router := mux.NewRouter()
	router.Handle(serverCfg.HTTP.SSEPath, routes.Stream).Methods(http.MethodGet)
	for _, path := range messagePaths(serverCfg.HTTP.MessagesPath) {
		router.Handle(path, routes.Dispatch)
	}
	if routes.Tools != nil {
		router.HandleFunc("/tools", func(w http.ResponseWriter, _ *http.Request) {
			respond.JSON(w, http.StatusOK, map[string]any{"tools": routes.Tools()})
		}).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", healthHandler.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.Readyz).Methods(http.MethodGet)
	if routes.Metrics != nil {
		router.Handle("/metrics", routes.Metrics).Methods(http.MethodGet)
	}
	if routes.MCP != nil && strings.TrimSpace(serverCfg.MCP.Path) != "" {
		router.Handle(serverCfg.MCP.Path, routes.MCP)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// WriteTimeout stays zero: push-channel responses live as long as the session.
	srv := &http.Server{
		Addr:              net.JoinHostPort(serverCfg.HTTP.Host, strconv.Itoa(serverCfg.HTTP.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeutil.ParseDurationOrDefault(serverCfg.HTTP.ReadTimeout, 15*time.Second),
		IdleTimeout:       timeutil.ParseDurationOrDefault(serverCfg.HTTP.IdleTimeout, 120*time.Second),
	}
	for _, fn := range routes.OnShutdown {
		if fn != nil {
			srv.RegisterOnShutdown(fn)
		}
	}

	if shutdownTimeout == 0 {
		shutdownTimeout = timeutil.ParseDurationOrDefault(serverCfg.ShutdownTimeout, 10*time.Second)
	}

	return &App{
		baseCtx:         baseCtx,
		server:          srv,
		router:          router,
		health:          healthHandler,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Addr returns the listen address.
func (a *App) Addr() string {
	return a.server.Addr
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.health.SetReady()
		if a.logger != nil {
			a.logger.Info("http server started", "addr", a.server.Addr)
		}
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if a.logger != nil {
			a.logger.Info("shutdown requested")
		}
		return a.shutdown()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if a.logger != nil {
			a.logger.Error("http server error", "error", err)
		}
		return err
	}
}

func (a *App) shutdown() error {
	a.health.SetNotReady()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.baseCtx), a.shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// messagePaths returns the callback route with and without its trailing slash.
func messagePaths(path string) []string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		trimmed = "/messages"
	}
	return []string{trimmed, trimmed + "/"}
}
