// Package dispatch handles correlated tool-invocation requests.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codex-k8s/tool-relay/internal/audit"
	"github.com/codex-k8s/tool-relay/internal/constants"
	"github.com/codex-k8s/tool-relay/internal/http/respond"
	"github.com/codex-k8s/tool-relay/internal/maputil"
	"github.com/codex-k8s/tool-relay/internal/metrics"
	"github.com/codex-k8s/tool-relay/internal/protocol"
	"github.com/codex-k8s/tool-relay/internal/session"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Rejection reasons reported to metrics.
const (
	reasonMethod          = "method"
	reasonInvalidJSON     = "invalid_json"
	reasonBodyTooLarge    = "body_too_large"
	reasonMissingField    = "missing_field"
	reasonSessionMismatch = "session_mismatch"
	reasonUnknownSession  = "unknown_session"
	reasonRateLimited     = "rate_limited"
	reasonUnknownTool     = "unknown_tool"
)

// Invoker runs tool invocations. *runtime.Table implements it.
type Invoker interface {
	// Has reports whether the tool exists.
	Has(name string) bool
	// Invoke runs the invocation to completion.
	Invoke(ctx context.Context, req protocol.InvocationRequest) protocol.ToolResult
}

// Handler validates correlated requests and routes them to execution units.
type Handler struct {
	// Registry owns the session table.
	Registry *session.Registry
	// Invoker runs capabilities.
	Invoker Invoker
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records dropped push results.
	Audit audit.Logger
	// Metrics counts rejected requests.
	Metrics *metrics.Metrics
	// Mode is the delivery mode (sync or push).
	Mode string
	// MaxBodyBytes caps the request body.
	MaxBodyBytes int64

	inflight sync.WaitGroup
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger().Error("dispatch panic", "panic", rec, "path", r.URL.Path)
			respond.Error(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if r.Method != http.MethodPost {
		h.reject(w, http.StatusMethodNotAllowed, reasonMethod, "method not allowed")
		return
	}

	req, status, reason, msg := h.decode(w, r)
	if status != 0 {
		h.reject(w, status, reason, msg)
		return
	}

	if err := h.Registry.Admit(req.SessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			h.reject(w, http.StatusNotFound, reasonUnknownSession, "unknown or closed session")
		case errors.Is(err, session.ErrRateLimited):
			h.reject(w, http.StatusTooManyRequests, reasonRateLimited, "rate limit exceeded")
		default:
			h.logger().Error("admit failed", "session_id", req.SessionID, "error", err)
			respond.Error(w, http.StatusInternalServerError, "internal error: "+err.Error())
		}
		return
	}

	if !h.Invoker.Has(req.ToolName) {
		h.reject(w, http.StatusBadRequest, reasonUnknownTool, "unknown tool: "+req.ToolName)
		return
	}

	args := maputil.Clone(req.Arguments, 1)
	args[constants.SessionIDArgument] = req.SessionID
	req.Arguments = args

	if strings.EqualFold(h.Mode, constants.DeliveryPush) {
		h.push(w, r, req)
		return
	}

	// Invocations run to completion or timeout even if the caller goes away.
	res := h.Invoker.Invoke(context.WithoutCancel(r.Context()), req)
	if res.Failed() {
		respond.JSON(w, http.StatusOK, protocol.ErrorResponse{Error: res.Error})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"result": res.Result})
}

// Wait blocks until every detached push-mode invocation has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (protocol.InvocationRequest, int, string, string) {
	var req protocol.InvocationRequest
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusRequestEntityTooLarge, reasonBodyTooLarge, "request body too large"
		}
		return req, http.StatusBadRequest, reasonInvalidJSON, "invalid JSON"
	}

	fromQuery := strings.TrimSpace(r.URL.Query().Get(constants.SessionIDArgument))
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.ToolName = strings.TrimSpace(req.ToolName)
	switch {
	case req.SessionID == "":
		req.SessionID = fromQuery
	case fromQuery != "" && fromQuery != req.SessionID:
		return req, http.StatusBadRequest, reasonSessionMismatch, "session_id mismatch"
	}

	if req.SessionID == "" {
		return req, http.StatusBadRequest, reasonMissingField, "missing required field: session_id"
	}
	if req.ToolName == "" {
		return req, http.StatusBadRequest, reasonMissingField, "missing required field: tool_name"
	}
	return req, 0, "", ""
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request, req protocol.InvocationRequest) {
	requestID := uuid.NewString()
	ctx := context.WithoutCancel(r.Context())

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		res := h.Invoker.Invoke(ctx, req)
		delivery := protocol.Delivery{
			RequestID: requestID,
			ToolName:  req.ToolName,
			Result:    res.Result,
			Error:     res.Error,
		}
		if err := h.Registry.Deliver(req.SessionID, delivery); err != nil {
			h.logger().Warn("result dropped", "session_id", req.SessionID, "tool", req.ToolName, "request_id", requestID, "error", err)
			if h.Audit != nil {
				h.Audit.Record(ctx, audit.Event{
					Type:      audit.TypeDropped,
					SessionID: req.SessionID,
					Tool:      req.ToolName,
					RequestID: requestID,
					Reason:    err.Error(),
				})
			}
		}
	}()

	respond.JSON(w, http.StatusAccepted, protocol.Accepted{Status: "accepted", RequestID: requestID})
}

func (h *Handler) reject(w http.ResponseWriter, status int, reason, msg string) {
	h.Metrics.Rejected(reason)
	h.logger().Debug("request rejected", "status", status, "reason", reason, "error", msg)
	respond.Error(w, status, msg)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}
