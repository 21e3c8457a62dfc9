package executor

import "context"

// Request contains tool execution inputs.
type Request struct {
	// ToolName is the tool being executed.
	ToolName string
	// Arguments are tool arguments, already carrying the session id.
	Arguments map[string]any
	// SessionID is the relay session the call belongs to.
	SessionID string
}

// Executor executes a tool invocation.
type Executor interface {
	// Execute runs the tool logic and returns its text output.
	Execute(ctx context.Context, req Request) (string, error)
}
