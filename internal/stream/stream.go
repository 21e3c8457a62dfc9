// Package stream serves the long-lived push channel of a session.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/codex-k8s/tool-relay/internal/audit"
	"github.com/codex-k8s/tool-relay/internal/constants"
	"github.com/codex-k8s/tool-relay/internal/http/respond"
	"github.com/codex-k8s/tool-relay/internal/metrics"
	"github.com/codex-k8s/tool-relay/internal/protocol"
	"github.com/codex-k8s/tool-relay/internal/session"
)

// DefaultKeepAlive is the keep-alive period used when none is configured.
const DefaultKeepAlive = 60 * time.Second

// Handler opens one session per connection and keeps it alive until the caller leaves.
type Handler struct {
	// Registry owns the session table.
	Registry *session.Registry
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records session events.
	Audit audit.Logger
	// Metrics tracks open sessions.
	Metrics *metrics.Metrics
	// KeepAlive is the keep-alive period.
	KeepAlive time.Duration
	// MessagesPath is the callback route advertised in the endpoint event.
	MessagesPath string

	initOnce  sync.Once
	closeOnce sync.Once
	stop      chan struct{}
}

// Shutdown ends every open stream. Later connections end right after the handshake.
func (h *Handler) Shutdown() {
	stop := h.stopped()
	h.closeOnce.Do(func() { close(stop) })
}

func (h *Handler) stopped() chan struct{} {
	h.initOnce.Do(func() { h.stop = make(chan struct{}) })
	return h.stop
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess := h.Registry.Open()
	defer h.release(r, sess.ID)
	h.Metrics.SessionOpened()
	h.record(r, audit.Event{Type: audit.TypeSessionOpen, SessionID: sess.ID})
	logger := h.logger().With("session_id", sess.ID)
	logger.Info("session opened", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := protocol.Endpoint{MessagesURL: sess.CallbackPath(h.messagesPath())}
	if err := writeEvent(w, flusher, constants.EventEndpoint, endpoint); err != nil {
		logger.Warn("write endpoint event failed", "error", err)
		return
	}

	ticker := time.NewTicker(h.keepAlive())
	defer ticker.Stop()
	stop := h.stopped()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keep-alive %d\n\n", now.Unix()); err != nil {
				logger.Warn("write keep-alive failed", "error", err)
				return
			}
			flusher.Flush()
		case delivery, open := <-sess.Deliveries:
			if !open {
				return
			}
			if err := writeEvent(w, flusher, constants.EventResult, delivery); err != nil {
				logger.Warn("write result event failed", "request_id", delivery.RequestID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) release(r *http.Request, id string) {
	h.Registry.Close(id)
	h.Metrics.SessionClosed()
	h.record(r, audit.Event{Type: audit.TypeSessionClose, SessionID: id})
	h.logger().Info("session closed", "session_id", id)
}

func (h *Handler) record(r *http.Request, event audit.Event) {
	if h.Audit != nil {
		h.Audit.Record(r.Context(), event)
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

func (h *Handler) keepAlive() time.Duration {
	if h.KeepAlive <= 0 {
		return DefaultKeepAlive
	}
	return h.KeepAlive
}

func (h *Handler) messagesPath() string {
	if h.MessagesPath == "" {
		return "/messages/"
	}
	return h.MessagesPath
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
