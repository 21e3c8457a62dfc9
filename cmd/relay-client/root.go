package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/tool-relay/internal/client"
)

type rootConfig struct {
	URL     string
	SSEPath string
	Timeout time.Duration
}

func newRootCmd() *cobra.Command {
	cfg := &rootConfig{}
	cmd := &cobra.Command{
		Use:   "relay-client",
		Short: "Scripted caller for a tool relay",
		Long: `Open a push channel to a tool relay, read the callback address and post invocations to it.

Examples:
  relay-client tools
  relay-client call get_alerts --arg state=CA
  relay-client call get_forecast --arg latitude=37.77 --arg longitude=-122.42
  relay-client call get_forecast --json '{"latitude":37.77,"longitude":-122.42}'`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfg.URL, "url", "http://localhost:8080", "Relay base URL")
	cmd.PersistentFlags().StringVar(&cfg.SSEPath, "sse-path", "/sse", "Push-channel route")
	cmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", 2*time.Minute, "Overall deadline for the command")

	cmd.AddCommand(newCallCmd(cfg))
	cmd.AddCommand(newToolsCmd(cfg))
	return cmd
}

func newToolsCmd(cfg *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the relay capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd, cfg)
			defer cancel()
			c, err := client.New(cfg.URL, client.WithSSEPath(cfg.SSEPath))
			if err != nil {
				return err
			}
			tools, err := c.Tools(ctx)
			if err != nil {
				return err
			}
			for _, tool := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tool.Name, tool.Description)
			}
			return nil
		},
	}
}

type callConfig struct {
	Args []string
	JSON string
}

func newCallCmd(cfg *rootConfig) *cobra.Command {
	callCfg := &callConfig{}
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one capability and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := parseArguments(callCfg.JSON, callCfg.Args)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, cfg)
			defer cancel()

			c, err := client.New(cfg.URL, client.WithSSEPath(cfg.SSEPath))
			if err != nil {
				return err
			}
			sess, err := c.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer func() { _ = sess.Close() }()

			res, err := sess.Call(ctx, args[0], arguments)
			if err != nil {
				return err
			}
			if res.Failed() {
				return errors.New(res.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Result)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&callCfg.Args, "arg", nil, "Argument as key=value; values that parse as JSON are sent typed")
	cmd.Flags().StringVar(&callCfg.JSON, "json", "", "Arguments as a JSON object")
	return cmd
}

// parseArguments merges a JSON object with key=value pairs; pairs win.
func parseArguments(raw string, pairs []string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("--arg %q must be key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			out[key] = typed
		} else {
			out[key] = value
		}
	}
	return out, nil
}
