package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/tool-relay/internal/audit"
	"github.com/codex-k8s/tool-relay/internal/dispatch"
	"github.com/codex-k8s/tool-relay/internal/dsl"
	"github.com/codex-k8s/tool-relay/internal/idempotency"
	"github.com/codex-k8s/tool-relay/internal/metrics"
	"github.com/codex-k8s/tool-relay/internal/runtime"
	"github.com/codex-k8s/tool-relay/internal/session"
	"github.com/codex-k8s/tool-relay/internal/stream"
	"github.com/codex-k8s/tool-relay/internal/timeutil"
)

// Components are the relay parts assembled from a validated config.
type Components struct {
	Registry *session.Registry
	Table    *runtime.Table
	Stream   *stream.Handler
	Dispatch *dispatch.Handler
	Metrics  *metrics.Metrics
	MCP      http.Handler
}

// Wire builds the session registry, capability table and HTTP handlers.
func Wire(cfg *dsl.Config, logger *slog.Logger) (*Components, error) {
	srv := cfg.Server
	m := metrics.New()
	var auditLogger audit.Logger = audit.Nop{}
	if logger != nil {
		auditLogger = audit.New(logger)
	}

	var cache *idempotency.Cache
	if srv.ResultCache.Enabled {
		cache = idempotency.NewCache(timeutil.ParseDurationOrDefault(srv.ResultCache.TTL, idempotency.DefaultTTL), srv.ResultCache.MaxEntries)
	}

	table, err := runtime.Builder{
		Logger:           logger,
		Audit:            auditLogger,
		Cache:            cache,
		CacheKeyStrategy: srv.ResultCache.KeyStrategy,
		Metrics:          m,
	}.Build(cfg)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(
		session.WithQueueSize(srv.Stream.QueueSize),
		session.WithRateLimit(srv.Limits.RatePerMinute),
	)

	c := &Components{
		Registry: registry,
		Table:    table,
		Metrics:  m,
		Stream: &stream.Handler{
			Registry:     registry,
			Logger:       logger,
			Audit:        auditLogger,
			Metrics:      m,
			KeepAlive:    timeutil.ParseDurationOrDefault(srv.Stream.KeepAliveInterval, stream.DefaultKeepAlive),
			MessagesPath: srv.HTTP.MessagesPath,
		},
		Dispatch: &dispatch.Handler{
			Registry:     registry,
			Invoker:      table,
			Logger:       logger,
			Audit:        auditLogger,
			Metrics:      m,
			Mode:         srv.Delivery,
			MaxBodyBytes: srv.HTTP.MaxBodyBytes,
		},
	}

	if srv.MCP.Enabled {
		server := table.MCPServer(srv.Name, srv.Version)
		c.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return server
		}, &mcp.StreamableHTTPOptions{
			Stateless: srv.MCP.Stateless,
		})
	}
	return c, nil
}

// Routes mounts the components on the relay routes.
func (c *Components) Routes() Routes {
	return Routes{
		Stream:     c.Stream,
		Dispatch:   c.Dispatch,
		Tools:      c.Table.Tools,
		Sessions:   c.Registry.Len,
		Metrics:    c.Metrics.Handler(),
		MCP:        c.MCP,
		OnShutdown: []func(){c.Stream.Shutdown},
	}
}

// Drain waits for detached push-mode invocations, at most timeout.
func (c *Components) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.Dispatch.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
