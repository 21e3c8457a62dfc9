package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/tool-relay/internal/protocol"
	"github.com/codex-k8s/tool-relay/internal/session"
)

type fakeInvoker struct {
	mu      sync.Mutex
	tools   map[string]func(protocol.InvocationRequest) protocol.ToolResult
	calls   []protocol.InvocationRequest
	ctxErrs []error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{tools: map[string]func(protocol.InvocationRequest) protocol.ToolResult{
		"get_alerts": func(req protocol.InvocationRequest) protocol.ToolResult {
			return protocol.ToolResult{ToolName: req.ToolName, Result: "No active alerts for this state."}
		},
		"get_forecast": func(req protocol.InvocationRequest) protocol.ToolResult {
			return protocol.ToolResult{ToolName: req.ToolName, Error: "handler exited with code 1: network unreachable"}
		},
		"explode": func(protocol.InvocationRequest) protocol.ToolResult {
			panic("boom")
		},
	}}
}

func (f *fakeInvoker) Has(name string) bool {
	_, ok := f.tools[name]
	return ok
}

func (f *fakeInvoker) Invoke(ctx context.Context, req protocol.InvocationRequest) protocol.ToolResult {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	fn := f.tools[req.ToolName]
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func post(h http.Handler, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func setup() (*Handler, *session.Registry, *fakeInvoker, string) {
	registry := session.NewRegistry()
	invoker := newFakeInvoker()
	sess := registry.Open()
	return &Handler{Registry: registry, Invoker: invoker}, registry, invoker, sess.ID
}

func TestSyncResult(t *testing.T) {
	h, _, invoker, id := setup()

	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_alerts","arguments":{"state":"CA"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"No active alerts for this state."}`, rec.Body.String())

	require.Equal(t, 1, invoker.callCount())
	call := invoker.calls[0]
	assert.Equal(t, "CA", call.Arguments["state"])
	assert.Equal(t, id, call.Arguments["session_id"])
}

func TestSyncCapabilityFailure(t *testing.T) {
	h, _, _, id := setup()

	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_forecast","arguments":{"latitude":1,"longitude":2}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"handler exited with code 1: network unreachable"}`, rec.Body.String())
}

func TestSessionIDFromQuery(t *testing.T) {
	h, _, invoker, id := setup()

	rec := post(h, "/messages/?session_id="+id, `{"tool_name":"get_alerts","arguments":{"state":"NY"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, invoker.callCount())
	assert.Equal(t, id, invoker.calls[0].SessionID)
}

func TestNilArgumentsStillCarrySession(t *testing.T) {
	h, _, invoker, id := setup()

	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_alerts"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, invoker.callCount())
	assert.Equal(t, map[string]any{"session_id": id}, invoker.calls[0].Arguments)
}

func TestRejections(t *testing.T) {
	h, registry, invoker, id := setup()
	closed := registry.Open()
	registry.Close(closed.ID)

	cases := []struct {
		name   string
		target string
		body   string
		status int
		error  string
	}{
		{"missing session", "/messages/", `{"tool_name":"get_alerts","arguments":{"state":"CA"}}`, http.StatusBadRequest, "missing required field: session_id"},
		{"missing tool", "/messages/", `{"session_id":"` + id + `","arguments":{}}`, http.StatusBadRequest, "missing required field: tool_name"},
		{"invalid json", "/messages/", `{"session_id":`, http.StatusBadRequest, "invalid JSON"},
		{"unknown tool", "/messages/", `{"session_id":"` + id + `","tool_name":"launch_rocket","arguments":{}}`, http.StatusBadRequest, "unknown tool: launch_rocket"},
		{"unknown session", "/messages/", `{"session_id":"never-issued","tool_name":"get_alerts","arguments":{}}`, http.StatusNotFound, "unknown or closed session"},
		{"closed session", "/messages/", `{"session_id":"` + closed.ID + `","tool_name":"get_alerts","arguments":{}}`, http.StatusNotFound, "unknown or closed session"},
		{"mismatch", "/messages/?session_id=other", `{"session_id":"` + id + `","tool_name":"get_alerts","arguments":{}}`, http.StatusBadRequest, "session_id mismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(h, tc.target, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.error+`"}`, rec.Body.String())
		})
	}
	assert.Equal(t, 0, invoker.callCount())

	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_alerts","arguments":{"state":"CA"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _, _ := setup()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBodyTooLarge(t *testing.T) {
	h, _, _, id := setup()
	h.MaxBodyBytes = 32
	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_alerts","arguments":{"state":"CA"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimited(t *testing.T) {
	registry := session.NewRegistry(session.WithRateLimit(1))
	id := registry.Open().ID
	h := &Handler{Registry: registry, Invoker: newFakeInvoker()}

	body := `{"session_id":"` + id + `","tool_name":"get_alerts","arguments":{}}`
	assert.Equal(t, http.StatusOK, post(h, "/messages/", body).Code)
	rec := post(h, "/messages/", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestPanicIsRecovered(t *testing.T) {
	h, _, _, id := setup()

	rec := post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"explode","arguments":{}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error: boom")

	rec = post(h, "/messages/", `{"session_id":"`+id+`","tool_name":"get_alerts","arguments":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPushDeliversOnSession(t *testing.T) {
	registry := session.NewRegistry()
	sess := registry.Open()
	h := &Handler{Registry: registry, Invoker: newFakeInvoker(), Mode: "push"}

	rec := post(h, "/messages/", `{"session_id":"`+sess.ID+`","tool_name":"get_alerts","arguments":{"state":"CA"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)

	select {
	case d := <-sess.Deliveries:
		assert.Equal(t, "get_alerts", d.ToolName)
		assert.Equal(t, "No active alerts for this state.", d.Result)
		assert.Contains(t, rec.Body.String(), d.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	h.Wait()
}

func TestPushSurvivesRequestCancel(t *testing.T) {
	registry := session.NewRegistry()
	sess := registry.Open()
	invoker := newFakeInvoker()
	h := &Handler{Registry: registry, Invoker: invoker, Mode: "push"}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/messages/", strings.NewReader(`{"session_id":"`+sess.ID+`","tool_name":"get_alerts","arguments":{}}`)).WithContext(ctx)
	cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.Wait()

	require.Equal(t, 1, invoker.callCount())
	assert.NoError(t, invoker.ctxErrs[0])
}

func TestPushDropsResultForClosedSession(t *testing.T) {
	registry := session.NewRegistry()
	sess := registry.Open()
	h := &Handler{Registry: registry, Invoker: newFakeInvoker(), Mode: "push"}

	rec := post(h, "/messages/", `{"session_id":"`+sess.ID+`","tool_name":"get_alerts","arguments":{}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	registry.Close(sess.ID)
	h.Wait()
	assert.False(t, registry.IsOpen(sess.ID))
}

func TestSyncSurvivesRequestCancel(t *testing.T) {
	h, _, invoker, id := setup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/messages/", strings.NewReader(`{"session_id":"`+id+`","tool_name":"get_alerts","arguments":{}}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, invoker.callCount())
	assert.NoError(t, invoker.ctxErrs[0])
}
