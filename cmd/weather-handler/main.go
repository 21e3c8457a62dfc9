package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codex-k8s/tool-relay/internal/log"
	"github.com/codex-k8s/tool-relay/internal/weather"
)

// Exit codes: 1 for environment problems, 2 for requests the handler cannot serve.
const (
	exitConfig     = 1
	exitBadRequest = 2
)

func main() {
	cfg, err := weather.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfig)
	}

	// stdout carries the response line, so diagnostics go to stderr.
	logger := log.NewTo(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tools := weather.Tools{Client: weather.NewClient(cfg.APIBase, cfg.Timeout, logger)}
	if err := tools.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("request failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, weather.ErrBadRequest) {
			os.Exit(exitBadRequest)
		}
		os.Exit(exitConfig)
	}
}
