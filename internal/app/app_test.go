package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/tool-relay/internal/client"
	"github.com/codex-k8s/tool-relay/internal/dsl"
)

const handlerScript = `#!/bin/sh
read -r line
case "$line" in
  *'"tool_name":"get_alerts"'*)
    echo "fetching alerts"
    echo '{"result":"No active alerts for this state."}'
    ;;
  *)
    echo "network unreachable" >&2
    exit 1
    ;;
esac
`

func writeHandler(t *testing.T) string {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("shell handler requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "handler.sh")
	require.NoError(t, os.WriteFile(path, []byte(handlerScript), 0o755))
	return path
}

func relayConfig(t *testing.T, delivery string) *dsl.Config {
	t.Helper()
	yaml := fmt.Sprintf(`
server:
  delivery: %s
  handler:
    path: %q
    timeout: 10s
  mcp:
    enabled: true
tools:
  - name: get_alerts
    description: Get weather alerts for a US state.
    input_schema:
      type: object
      properties:
        state: {type: string}
      required: [state]
  - name: get_forecast
    description: Get weather forecast for a location.
`, delivery, writeHandler(t))
	cfg, err := dsl.Load([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func startRelay(t *testing.T, delivery string) (*httptest.Server, *Components) {
	t.Helper()
	cfg := relayConfig(t, delivery)
	components, err := Wire(cfg, nil)
	require.NoError(t, err)
	application, err := New(context.Background(), cfg.Server, components.Routes(), nil, time.Second)
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		components.Stream.Shutdown()
		srv.Close()
		components.Drain(5 * time.Second)
	})
	return srv, components
}

func connect(t *testing.T, srv *httptest.Server) (*client.Session, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	c, err := client.New(srv.URL)
	require.NoError(t, err)
	sess, err := c.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess, ctx
}

func TestScenarioAlertsThroughHandler(t *testing.T) {
	srv, components := startRelay(t, "sync")
	sess, ctx := connect(t, srv)

	assert.True(t, components.Registry.IsOpen(sess.ID))
	res, err := sess.Call(ctx, "get_alerts", map[string]any{"state": "CA"})
	require.NoError(t, err)
	assert.Equal(t, "No active alerts for this state.", res.Result)
	assert.Empty(t, res.Error)
}

func TestScenarioMissingSessionID(t *testing.T) {
	srv, _ := startRelay(t, "sync")

	resp, err := http.Post(srv.URL+"/messages/", "application/json", strings.NewReader(`{"tool_name":"get_alerts","arguments":{"state":"CA"}}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"missing required field: session_id"}`, string(body))
}

func TestScenarioUnknownToolKeepsServing(t *testing.T) {
	srv, _ := startRelay(t, "sync")
	first, ctx := connect(t, srv)
	second, _ := connect(t, srv)

	_, err := first.Call(ctx, "launch_rocket", nil)
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, "unknown tool: launch_rocket", statusErr.Message)

	res, err := second.Call(ctx, "get_alerts", map[string]any{"state": "NY"})
	require.NoError(t, err)
	assert.Equal(t, "No active alerts for this state.", res.Result)
}

func TestScenarioHandlerFailureSurfacesStderr(t *testing.T) {
	srv, _ := startRelay(t, "sync")
	sess, ctx := connect(t, srv)

	res, err := sess.Call(ctx, "get_forecast", map[string]any{"latitude": 37.77, "longitude": -122.42})
	require.NoError(t, err)
	assert.Empty(t, res.Result)
	assert.Contains(t, res.Error, "network unreachable")
}

func TestPushDelivery(t *testing.T) {
	srv, _ := startRelay(t, "push")
	sess, ctx := connect(t, srv)

	res, err := sess.Call(ctx, "get_alerts", map[string]any{"state": "TX"})
	require.NoError(t, err)
	assert.Equal(t, "No active alerts for this state.", res.Result)

	res, err = sess.Call(ctx, "get_forecast", map[string]any{"latitude": 1, "longitude": 2})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "network unreachable")
}

func TestMessagesPathWithoutSlash(t *testing.T) {
	srv, components := startRelay(t, "sync")
	sess, _ := connect(t, srv)
	require.True(t, components.Registry.IsOpen(sess.ID))

	resp, err := http.Post(srv.URL+"/messages", "application/json",
		strings.NewReader(`{"session_id":"`+sess.ID+`","tool_name":"get_alerts","arguments":{"state":"CA"}}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":"No active alerts for this state."}`, string(body))
}

func TestAuxiliaryRoutes(t *testing.T) {
	srv, _ := startRelay(t, "sync")

	c, err := client.New(srv.URL)
	require.NoError(t, err)
	tools, err := c.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_alerts", tools[0].Name)

	for path, status := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
		"/metrics": http.StatusOK,
		"/missing": http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/sse", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNewRequiresHandlers(t *testing.T) {
	_, err := New(context.Background(), dsl.ServerConfig{}, Routes{}, nil, 0)
	assert.Error(t, err)
}

func TestMessagePaths(t *testing.T) {
	assert.Equal(t, []string{"/messages", "/messages/"}, messagePaths("/messages/"))
	assert.Equal(t, []string{"/rpc", "/rpc/"}, messagePaths("/rpc"))
	assert.Equal(t, []string{"/messages", "/messages/"}, messagePaths(""))
}
