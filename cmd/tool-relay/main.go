package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codex-k8s/tool-relay/configs"
	"github.com/codex-k8s/tool-relay/internal/app"
	"github.com/codex-k8s/tool-relay/internal/config"
	"github.com/codex-k8s/tool-relay/internal/dsl"
	"github.com/codex-k8s/tool-relay/internal/log"
	"github.com/codex-k8s/tool-relay/internal/render"
	"github.com/codex-k8s/tool-relay/internal/startup"
	"github.com/codex-k8s/tool-relay/internal/timeutil"
)

func main() {
	embeddedConfig := flag.String("embedded-config", "", "Use embedded config from configs/ (filename)")
	host := flag.String("host", "", "Interface to bind (overrides RELAY_HOST and server.http.host)")
	port := flag.Int("port", 0, "Port to listen on (overrides RELAY_PORT and server.http.port)")
	handlerPath := flag.String("handler-path", "", "Capability handler program (overrides RELAY_HANDLER_PATH and server.handler.path)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)

	var rendered []byte
	switch {
	case *embeddedConfig != "" || cfg.ConfigPath == "":
		name := *embeddedConfig
		if name == "" {
			name = configs.DefaultName
		}
		raw, err := configs.Load(name)
		if err != nil {
			logger.Error("load embedded config failed", "error", err)
			os.Exit(1)
		}
		rendered, err = render.RenderBytes(name, raw)
		if err != nil {
			logger.Error("render config failed", "error", err)
			os.Exit(1)
		}
	default:
		rendered, err = render.RenderFile(cfg.ConfigPath)
		if err != nil {
			logger.Error("render config failed", "error", err)
			os.Exit(1)
		}
	}

	dslCfg, err := dsl.Load(rendered,
		listenOverride(cfg.Host, cfg.Port, cfg.HandlerPath, cfg.Delivery),
		listenOverride(*host, *port, *handlerPath, ""),
	)
	if err != nil {
		logger.Error("parse config failed", "error", err)
		os.Exit(1)
	}

	if err := startup.Preflight(dslCfg); err != nil {
		logger.Error("handler preflight failed", "error", err)
		os.Exit(1)
	}

	components, err := app.Wire(dslCfg, logger)
	if err != nil {
		logger.Error("build relay failed", "error", err)
		os.Exit(1)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("shutdown requested", "signal", sig.String())
		cancel()
	}()

	if err := startup.Run(baseCtx, dslCfg.Server.StartupHooks, logger); err != nil {
		logger.Error("startup hooks failed", "error", err)
		os.Exit(1)
	}

	shutdownTimeout := timeutil.ParseDurationOrDefault(dslCfg.Server.ShutdownTimeout, cfg.ShutdownTimeout)
	application, err := app.New(baseCtx, dslCfg.Server, components.Routes(), logger, shutdownTimeout)
	if err != nil {
		logger.Error("init http server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relay configured",
		"addr", application.Addr(),
		"delivery", dslCfg.Server.Delivery,
		"tools", components.Table.Names(),
		"mcp", dslCfg.Server.MCP.Enabled,
	)
	if err := application.Run(baseCtx); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
	if !components.Drain(shutdownTimeout) {
		logger.Warn("push invocations still running at exit")
	}
}

// listenOverride applies non-empty listen and handler settings on top of the YAML config.
func listenOverride(host string, port int, handlerPath, delivery string) dsl.Override {
	return func(c *dsl.Config) {
		if host != "" {
			c.Server.HTTP.Host = host
		}
		if port != 0 {
			c.Server.HTTP.Port = port
		}
		if handlerPath != "" {
			c.Server.Handler.Path = handlerPath
		}
		if delivery != "" {
			c.Server.Delivery = delivery
		}
	}
}
