package weather

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

const maxRequestLine = 1 << 20

// Serve reads one request per line from r and writes one response line per request to w.
// It returns at EOF, or with an error wrapping ErrBadRequest on the first unusable request.
func (t Tools) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req protocol.HandlerRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return fmt.Errorf("%w: invalid JSON: %v", ErrBadRequest, err)
		}
		result, err := t.Handle(ctx, req)
		if err != nil {
			return err
		}
		if err := enc.Encode(protocol.HandlerResponse{Result: &result}); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}
