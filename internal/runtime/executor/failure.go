package executor

import (
	"fmt"
	"strings"
	"time"
)

// FailureKind classifies why an execution unit failed.
type FailureKind string

// Failure kinds.
const (
	// FailureSpawn means the handler process could not be started.
	FailureSpawn FailureKind = "spawn"
	// FailureExit means the handler exited with a non-zero code.
	FailureExit FailureKind = "exit"
	// FailureTimeout means the deadline expired and the handler was killed.
	FailureTimeout FailureKind = "timeout"
	// FailureCanceled means the caller context was canceled.
	FailureCanceled FailureKind = "canceled"
	// FailureProtocol means stdout held no decodable response line.
	FailureProtocol FailureKind = "protocol"
	// FailureHandler means the handler reported an error in its response line.
	FailureHandler FailureKind = "handler"
)

// Failure describes a failed execution unit.
type Failure struct {
	// Kind classifies the failure.
	Kind FailureKind
	// Tool is the invoked tool.
	Tool string
	// ExitCode is the process exit code, -1 when unknown.
	ExitCode int
	// Stderr is the captured diagnostic channel.
	Stderr string
	// Message is the handler-reported reason for FailureHandler.
	Message string
	// Timeout is the deadline that expired for FailureTimeout.
	Timeout time.Duration
	// Err is the underlying error, if any.
	Err error
}

func (f *Failure) Error() string {
	var msg string
	switch f.Kind {
	case FailureSpawn:
		msg = fmt.Sprintf("failed to start handler: %v", f.Err)
	case FailureExit:
		msg = fmt.Sprintf("handler exited with code %d", f.ExitCode)
	case FailureTimeout:
		msg = fmt.Sprintf("handler timed out after %s", f.Timeout)
	case FailureCanceled:
		msg = "handler canceled"
	case FailureProtocol:
		msg = "handler produced no result"
		if f.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, f.Err)
		}
	case FailureHandler:
		msg = f.Message
	default:
		msg = "handler failed"
	}
	if stderr := strings.TrimSpace(f.Stderr); stderr != "" && f.Kind != FailureHandler {
		msg = fmt.Sprintf("%s: %s", msg, stderr)
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}
