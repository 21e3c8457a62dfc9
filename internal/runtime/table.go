package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codex-k8s/tool-relay/internal/audit"
	"github.com/codex-k8s/tool-relay/internal/idempotency"
	"github.com/codex-k8s/tool-relay/internal/maputil"
	"github.com/codex-k8s/tool-relay/internal/metrics"
	"github.com/codex-k8s/tool-relay/internal/protocol"
	"github.com/codex-k8s/tool-relay/internal/runtime/executor"
	"github.com/codex-k8s/tool-relay/internal/security"
)

// Capability is one entry of the capability table.
type Capability struct {
	// Name is the tool name.
	Name string
	// Description explains the tool to the planner.
	Description string
	// InputSchema is the JSON Schema of the arguments.
	InputSchema map[string]any
	// Cacheable allows results to be served from the result cache.
	Cacheable bool
	// Executor runs the invocation.
	Executor executor.Executor

	schema *jsonschema.Schema
}

// Table maps tool names to invocation descriptors. It is immutable after Build.
type Table struct {
	capabilities     map[string]Capability
	logger           *slog.Logger
	audit            audit.Logger
	cache            *idempotency.Cache
	cacheKeyStrategy string
	metrics          *metrics.Metrics
	redactor         *security.Redactor
}

// Has reports whether name is a known capability.
func (t *Table) Has(name string) bool {
	_, ok := t.capabilities[name]
	return ok
}

// Names returns the tool names in sorted order.
func (t *Table) Names() []string {
	return maputil.SortedKeys(t.capabilities)
}

// Tools describes every capability in name order.
func (t *Table) Tools() []protocol.ToolInfo {
	out := make([]protocol.ToolInfo, 0, len(t.capabilities))
	for _, name := range t.Names() {
		c := t.capabilities[name]
		out = append(out, protocol.ToolInfo{Name: c.Name, Description: c.Description, InputSchema: c.InputSchema})
	}
	return out
}

// Invoke runs one invocation to completion and returns exactly one result.
// Capability failures are reported in ToolResult.Error, never as a Go error.
func (t *Table) Invoke(ctx context.Context, req protocol.InvocationRequest) protocol.ToolResult {
	res := protocol.ToolResult{ToolName: req.ToolName}
	capability, ok := t.capabilities[req.ToolName]
	if !ok {
		res.Error = "unknown tool: " + req.ToolName
		return res
	}

	if t.logger != nil {
		t.logger.Info("tool call", "tool", req.ToolName, "session_id", req.SessionID, "args", t.redactor.Redact(req.Arguments))
	}
	t.record(ctx, audit.Event{Type: audit.TypeToolCall, SessionID: req.SessionID, Tool: req.ToolName})

	if err := validateArguments(capability.schema, req.Arguments); err != nil {
		res.Error = "invalid arguments: " + err.Error()
		if t.logger != nil {
			t.logger.Warn("tool arguments rejected", "tool", req.ToolName, "session_id", req.SessionID, "error", err)
		}
		t.record(ctx, audit.Event{Type: audit.TypeToolError, SessionID: req.SessionID, Tool: req.ToolName, Reason: res.Error})
		t.metrics.Invocation(req.ToolName, metrics.OutcomeInvalid, 0)
		return res
	}

	cacheKey := ""
	if t.cache != nil && capability.Cacheable {
		key, err := buildCacheKey(req.ToolName, req.Arguments, t.cacheKeyStrategy)
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("cache key build failed", "tool", req.ToolName, "error", err)
			}
		} else {
			cacheKey = key
		}
	}
	if cacheKey != "" {
		if cached, ok := t.cache.Get(cacheKey); ok {
			t.record(ctx, audit.Event{Type: audit.TypeCacheHit, SessionID: req.SessionID, Tool: req.ToolName})
			t.metrics.Invocation(req.ToolName, metrics.OutcomeCached, 0)
			cached.ToolName = req.ToolName
			return cached
		}
	}

	started := time.Now()
	output, err := capability.Executor.Execute(ctx, executor.Request{
		ToolName:  req.ToolName,
		Arguments: req.Arguments,
		SessionID: req.SessionID,
	})
	elapsed := time.Since(started)

	if err != nil {
		res.Error = err.Error()
		kind := ""
		var failure *executor.Failure
		if errors.As(err, &failure) {
			kind = string(failure.Kind)
		}
		if t.logger != nil {
			t.logger.Warn("tool failed", "tool", req.ToolName, "session_id", req.SessionID, "kind", kind, "elapsed", elapsed, "error", err)
		}
		t.record(ctx, audit.Event{Type: audit.TypeToolError, SessionID: req.SessionID, Tool: req.ToolName, Reason: res.Error})
		t.metrics.Invocation(req.ToolName, metrics.OutcomeError, elapsed)
		return res
	}

	res.Result = output
	if t.logger != nil {
		t.logger.Info("tool ok", "tool", req.ToolName, "session_id", req.SessionID, "elapsed", elapsed, "bytes", len(output))
	}
	t.record(ctx, audit.Event{Type: audit.TypeToolOK, SessionID: req.SessionID, Tool: req.ToolName})
	t.metrics.Invocation(req.ToolName, metrics.OutcomeOK, elapsed)
	if cacheKey != "" {
		t.cache.Set(cacheKey, res)
		t.record(ctx, audit.Event{Type: audit.TypeCacheStore, SessionID: req.SessionID, Tool: req.ToolName})
	}
	return res
}

func (t *Table) record(ctx context.Context, event audit.Event) {
	if t.audit != nil {
		t.audit.Record(ctx, event)
	}
}
