package runtime

import (
	"fmt"
	"log/slog"

	"github.com/codex-k8s/tool-relay/internal/audit"
	"github.com/codex-k8s/tool-relay/internal/dsl"
	"github.com/codex-k8s/tool-relay/internal/idempotency"
	"github.com/codex-k8s/tool-relay/internal/metrics"
	"github.com/codex-k8s/tool-relay/internal/runtime/executor"
	"github.com/codex-k8s/tool-relay/internal/security"
	"github.com/codex-k8s/tool-relay/internal/timeutil"
)

// Builder constructs the capability table from the DSL config.
type Builder struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records tool events.
	Audit audit.Logger
	// Cache stores results of cacheable tools. Nil disables caching.
	Cache *idempotency.Cache
	// CacheKeyStrategy selects how cache keys are computed.
	CacheKeyStrategy string
	// Metrics records invocation outcomes.
	Metrics *metrics.Metrics
	// Redactor hides sensitive arguments in logs.
	Redactor *security.Redactor
}

// Build resolves every tool to an invocation descriptor.
func (b Builder) Build(cfg *dsl.Config) (*Table, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	redactor := b.Redactor
	if redactor == nil {
		redactor = security.NewRedactor(cfg.Server.Log.RedactKeys)
	}
	table := &Table{
		capabilities:     make(map[string]Capability, len(cfg.Tools)),
		logger:           b.Logger,
		audit:            b.Audit,
		cache:            b.Cache,
		cacheKeyStrategy: b.CacheKeyStrategy,
		metrics:          b.Metrics,
		redactor:         redactor,
	}
	for _, tool := range cfg.Tools {
		if _, exists := table.capabilities[tool.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", tool.Name)
		}
		schema, err := compileSchema(tool.Name, tool.InputSchema)
		if err != nil {
			return nil, err
		}
		table.capabilities[tool.Name] = Capability{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			Cacheable:   tool.Cacheable,
			Executor:    buildExecutor(cfg.Server.Handler, tool),
			schema:      schema,
		}
	}
	return table, nil
}

func buildExecutor(def dsl.HandlerConfig, tool dsl.ToolConfig) executor.Process {
	handler := def
	if tool.Handler != nil {
		handler = *tool.Handler
	}
	timeout := timeutil.ParseDurationOrDefault(tool.Timeout, 0)
	if timeout == 0 {
		timeout = timeutil.ParseDurationOrDefault(handler.Timeout, 0)
	}
	if timeout == 0 {
		timeout = timeutil.ParseDurationOrDefault(def.Timeout, executor.DefaultTimeout)
	}
	return executor.Process{
		Command:   handler.Path,
		Args:      handler.Args,
		Env:       handler.Env,
		Dir:       handler.Dir,
		Timeout:   timeout,
		KillGrace: timeutil.ParseDurationOrDefault(handler.KillGrace, executor.DefaultKillGrace),
	}
}
