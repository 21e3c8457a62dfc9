// Package session tracks push-channel sessions and their per-session state.
package session

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/codex-k8s/tool-relay/internal/maputil"
	"github.com/codex-k8s/tool-relay/internal/protocol"
)

var (
	// ErrSessionNotFound is returned for ids that were never issued or are closed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited is returned when a session exceeds its invocation rate.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrQueueFull is returned when the delivery queue of a session is full.
	ErrQueueFull = errors.New("delivery queue full")
)

const defaultQueueSize = 16

// Session is the handle returned to the stream handler that owns the connection.
type Session struct {
	// ID is the opaque session token.
	ID string
	// OpenedAt is the time the session was opened.
	OpenedAt time.Time
	// Deliveries receives pushed results; closed when the session closes.
	Deliveries <-chan protocol.Delivery
}

// CallbackPath returns messagesPath with the session id as query parameter.
func (s Session) CallbackPath(messagesPath string) string {
	return messagesPath + "?" + url.Values{"session_id": []string{s.ID}}.Encode()
}

type entry struct {
	queue   chan protocol.Delivery
	limiter *rate.Limiter
}

// Registry is a lock-guarded table of open sessions.
type Registry struct {
	mu            sync.Mutex
	sessions      map[string]*entry
	queueSize     int
	ratePerMinute int
	newID         func() string
	now           func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithQueueSize sets the per-session delivery queue capacity.
func WithQueueSize(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.queueSize = size
		}
	}
}

// WithRateLimit limits invocations per session per minute. Zero disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(r *Registry) {
		if perMinute > 0 {
			r.ratePerMinute = perMinute
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:  make(map[string]*entry),
		queueSize: defaultQueueSize,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open mints a fresh session id and marks it open.
func (r *Registry) Open() Session {
	e := &entry{queue: make(chan protocol.Delivery, r.queueSize)}
	if r.ratePerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.ratePerMinute)), r.ratePerMinute)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for _, exists := r.sessions[id]; exists; _, exists = r.sessions[id] {
		id = r.newID()
	}
	r.sessions[id] = e
	return Session{ID: id, OpenedAt: r.now(), Deliveries: e.queue}
}

// IsOpen reports whether id references an open session.
func (r *Registry) IsOpen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// Close marks the session closed. Closing an unknown or closed session is a no-op.
func (r *Registry) Close(id string) {
	// Deliver only sends while the entry is present, so closing after removal is safe.
	if e, ok := maputil.Pop(&r.mu, r.sessions, id); ok {
		close(e.queue)
	}
}

// Admit checks that id is open and within its rate limit.
func (r *Registry) Admit(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// Deliver enqueues a result for the session stream without blocking.
func (r *Registry) Deliver(id string, d protocol.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	select {
	case e.queue <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns open session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maputil.SortedKeys(r.sessions)
}
