package startup

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/codex-k8s/tool-relay/internal/dsl"
	"github.com/codex-k8s/tool-relay/internal/executil"
)

// Preflight verifies that every handler program referenced by the config can be started.
func Preflight(cfg *dsl.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	paths := map[string]string{cfg.Server.Handler.Path: "server.handler"}
	for i, tool := range cfg.Tools {
		if tool.Handler != nil {
			if _, seen := paths[tool.Handler.Path]; !seen {
				paths[tool.Handler.Path] = fmt.Sprintf("tools[%d].handler", i)
			}
		}
	}

	var result *multierror.Error
	for path, field := range paths {
		if strings.Contains(path, "{{") {
			continue
		}
		if _, err := exec.LookPath(path); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s.path %q is not executable: %w", field, path, err))
		}
	}
	return result.ErrorOrNil()
}

// Run executes configured startup hooks sequentially.
func Run(ctx context.Context, hooks []dsl.HookConfig, logger *slog.Logger) error {
	for idx, hook := range hooks {
		if strings.TrimSpace(hook.Command) == "" {
			continue
		}
		hookCtx := ctx
		var cancel context.CancelFunc
		if strings.TrimSpace(hook.Timeout) != "" {
			timeout, err := time.ParseDuration(hook.Timeout)
			if err != nil {
				return fmt.Errorf("startup hook %d: invalid timeout: %w", idx, err)
			}
			hookCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		if logger != nil {
			logger.Info("running startup hook", "index", idx)
		}

		output, exitCode, err := executil.RunCommand(hookCtx, executil.Command{
			Path:  hook.Command,
			Args:  hook.Args,
			Env:   hook.Env,
			Shell: true,
		}, executil.TemplateData{})
		if cancel != nil {
			cancel()
		}
		output = strings.TrimSpace(output)
		if err != nil {
			if logger != nil && output != "" {
				logger.Error("startup hook failed", "index", idx, "exit_code", exitCode, "output", output)
			}
			return fmt.Errorf("startup hook %d failed: %w", idx, err)
		}
		if logger != nil && output != "" {
			logger.Info("startup hook output", "index", idx, "output", output)
		}
	}
	return nil
}
