package audit

import (
	"context"
	"log/slog"
)

// Event types.
const (
	TypeSessionOpen  = "session_open"
	TypeSessionClose = "session_close"
	TypeToolCall     = "tool_call"
	TypeToolOK       = "tool_ok"
	TypeToolError    = "tool_error"
	TypeCacheHit     = "cache_hit"
	TypeCacheStore   = "cache_store"
	TypeDropped      = "result_dropped"
)

// Event represents an audit entry for sessions and tool execution.
type Event struct {
	// Type describes the event kind.
	Type string
	// SessionID links the event to a push-channel session.
	SessionID string
	// Tool is the tool name.
	Tool string
	// RequestID links push-mode acknowledgements to results.
	RequestID string
	// Reason provides additional context.
	Reason string
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event, omitting empty attributes.
func (l *StdLogger) Record(ctx context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	attrs := []slog.Attr{slog.String("type", event.Type)}
	for _, kv := range [][2]string{
		{"session_id", event.SessionID},
		{"tool", event.Tool},
		{"request_id", event.RequestID},
		{"reason", event.Reason},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// Nop discards events.
type Nop struct{}

// Record implements Logger.
func (Nop) Record(context.Context, Event) {}
