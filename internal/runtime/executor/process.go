package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/codex-k8s/tool-relay/internal/executil"
	"github.com/codex-k8s/tool-relay/internal/protocol"
)

const (
	// DefaultTimeout bounds one execution unit when no timeout is configured.
	DefaultTimeout = 60 * time.Second
	// DefaultKillGrace bounds output draining after the process is killed.
	DefaultKillGrace = 2 * time.Second
	// DefaultMaxOutputBytes caps each of stdout and stderr.
	DefaultMaxOutputBytes = 4 << 20
)

// Process runs every invocation in a fresh child process speaking the
// one-line JSON protocol on stdin/stdout.
type Process struct {
	// Command is the handler executable.
	Command string
	// Args are handler arguments; templates over ToolName, SessionID and arg.
	Args []string
	// Env adds environment variables.
	Env map[string]string
	// Dir is the working directory.
	Dir string
	// Timeout bounds the whole exchange.
	Timeout time.Duration
	// KillGrace bounds pipe draining after the process is killed.
	KillGrace time.Duration
	// MaxOutputBytes caps captured stdout and stderr.
	MaxOutputBytes int
}

// Execute spawns the handler, writes one request line and decodes one response line.
func (p Process) Execute(ctx context.Context, req Request) (string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	grace := p.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	limit := p.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	line, err := json.Marshal(protocol.HandlerRequest{ToolName: req.ToolName, Arguments: args})
	if err != nil {
		return "", &Failure{Kind: FailureSpawn, Tool: req.ToolName, ExitCode: -1, Err: fmt.Errorf("encode request: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := executil.BuildCommand(runCtx, executil.Command{
		Path: p.Command,
		Args: p.Args,
		Env:  p.Env,
		Dir:  p.Dir,
	}, executil.TemplateData{Args: args, ToolName: req.ToolName, SessionID: req.SessionID})
	if err != nil {
		return "", &Failure{Kind: FailureSpawn, Tool: req.ToolName, ExitCode: -1, Err: err}
	}

	stdout := &cappedBuffer{max: limit}
	stderr := &cappedBuffer{max: limit}
	cmd.Stdin = bytes.NewReader(append(line, '\n'))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return "", &Failure{Kind: FailureSpawn, Tool: req.ToolName, ExitCode: -1, Err: err}
	}
	waitErr := cmd.Wait()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return "", &Failure{Kind: FailureTimeout, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Timeout: timeout, Err: runCtx.Err()}
	case ctx.Err() != nil:
		return "", &Failure{Kind: FailureCanceled, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return "", &Failure{Kind: FailureExit, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Err: waitErr}
	}
	if exitCode != 0 {
		return "", &Failure{Kind: FailureExit, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Err: waitErr}
	}

	resp, err := decodeResponse(stdout.Bytes(), limit)
	if err != nil {
		return "", &Failure{Kind: FailureProtocol, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}
	if resp.Error != nil {
		return "", &Failure{Kind: FailureHandler, Tool: req.ToolName, ExitCode: exitCode, Stderr: stderr.String(), Message: *resp.Error}
	}
	return strings.TrimSpace(*resp.Result), nil
}

// decodeResponse returns the last stdout line that is a JSON object carrying
// result or error. Other lines are treated as diagnostics.
func decodeResponse(stdout []byte, limit int) (protocol.HandlerResponse, error) {
	var found *protocol.HandlerResponse
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), limit+1)
	for scanner.Scan() {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] != '{' {
			continue
		}
		var resp protocol.HandlerResponse
		if err := json.Unmarshal(text, &resp); err != nil {
			continue
		}
		if resp.Result == nil && resp.Error == nil {
			continue
		}
		found = &resp
	}
	if err := scanner.Err(); err != nil {
		return protocol.HandlerResponse{}, fmt.Errorf("read stdout: %w", err)
	}
	if found == nil {
		return protocol.HandlerResponse{}, errors.New("no response line on stdout")
	}
	return *found, nil
}

// cappedBuffer keeps at most max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "...(truncated)"
	}
	return b.buf.String()
}
