package health

import (
	"net/http"
	"sync/atomic"

	"github.com/codex-k8s/tool-relay/internal/http/respond"
)

// Handler serves liveness and readiness probes.
type Handler struct {
	ready    atomic.Bool
	sessions func() int
}

// New returns a health handler instance. sessions reports the open session count and may be nil.
func New(sessions func() int) *Handler {
	return &Handler{sessions: sessions}
}

// SetReady marks the handler as ready.
func (h *Handler) SetReady() {
	h.ready.Store(true)
}

// SetNotReady marks the handler as not ready.
func (h *Handler) SetNotReady() {
	h.ready.Store(false)
}

// Healthz handles liveness probes.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz handles readiness probes.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	status := readiness{Status: "ready"}
	if h.sessions != nil {
		status.Sessions = h.sessions()
	}
	if h.ready.Load() {
		respond.JSON(w, http.StatusOK, status)
		return
	}
	status.Status = "not ready"
	respond.JSON(w, http.StatusServiceUnavailable, status)
}

type readiness struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
