package main

import (
	"context"

	"github.com/spf13/cobra"
)

func withTimeout(cmd *cobra.Command, cfg *rootConfig) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}
