package weather

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

func newNWS(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "weather-app/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{base}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAlerts(t *testing.T) {
	srv := newNWS(t, map[string]string{
		"/alerts/active/area/CA": `{"features":[
			{"properties":{"event":"Heat Advisory","areaDesc":"Fresno","severity":"Moderate","description":"Hot.","instruction":"Drink water."}},
			{"properties":{"event":"Wind Advisory"}}
		]}`,
		"/alerts/active/area/NY": `{"features":[]}`,
		"/alerts/active/area/TX": `{"type":"FeatureCollection"}`,
	})
	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	out := c.Alerts(ctx, "CA")
	parts := strings.Split(out, "\n---\n")
	require.Len(t, parts, 2)
	assert.Equal(t, "\nEvent: Heat Advisory\nArea: Fresno\nSeverity: Moderate\nDescription: Hot.\nInstructions: Drink water.\n", parts[0])
	assert.Contains(t, parts[1], "Area: Unknown")
	assert.Contains(t, parts[1], "Description: No description available")
	assert.Contains(t, parts[1], "Instructions: No specific instructions provided")

	assert.Equal(t, MsgNoAlerts, c.Alerts(ctx, "NY"))
	assert.Equal(t, MsgAlertsUnavailable, c.Alerts(ctx, "TX"))
	assert.Equal(t, MsgAlertsUnavailable, c.Alerts(ctx, "ZZ"))
}

func TestForecast(t *testing.T) {
	periods := make([]string, 0, 7)
	for _, name := range []string{"Tonight", "Monday", "Monday Night", "Tuesday", "Tuesday Night", "Wednesday", "Wednesday Night"} {
		periods = append(periods, `{"name":"`+name+`","temperature":61,"temperatureUnit":"F","windSpeed":"5 mph","windDirection":"W","detailedForecast":"Clear."}`)
	}
	srv := newNWS(t, map[string]string{
		"/points/37.7749,-122.4194":       `{"properties":{"forecast":"{{base}}/gridpoints/MTR/85,105/forecast"}}`,
		"/gridpoints/MTR/85,105/forecast": `{"properties":{"periods":[` + strings.Join(periods, ",") + `]}}`,
		"/points/1,2":                     `{"properties":{"forecast":"{{base}}/gridpoints/missing"}}`,
	})
	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	out := c.Forecast(ctx, 37.7749, -122.4194)
	parts := strings.Split(out, "\n---\n")
	require.Len(t, parts, 5)
	assert.Equal(t, "\nTonight:\nTemperature: 61°F\nWind: 5 mph W\nForecast: Clear.\n", parts[0])
	assert.NotContains(t, out, "Wednesday")

	assert.Equal(t, MsgDetailedUnavailable, c.Forecast(ctx, 1, 2))
	assert.Equal(t, MsgForecastUnavailable, c.Forecast(ctx, 3, 4))
}

func TestForecastUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil)
	assert.Equal(t, MsgForecastUnavailable, c.Forecast(context.Background(), 1, 2))
	assert.Equal(t, MsgAlertsUnavailable, c.Alerts(context.Background(), "CA"))
}

func TestHandleArguments(t *testing.T) {
	srv := newNWS(t, map[string]string{"/alerts/active/area/CA": `{"features":[]}`})
	tools := Tools{Client: NewClient(srv.URL, time.Second, nil)}
	ctx := context.Background()

	out, err := tools.Handle(ctx, protocol.HandlerRequest{ToolName: "get_alerts", Arguments: map[string]any{"state": "ca", "session_id": "s1"}})
	require.NoError(t, err)
	assert.Equal(t, MsgNoAlerts, out)

	for _, req := range []protocol.HandlerRequest{
		{ToolName: "get_alerts", Arguments: map[string]any{}},
		{ToolName: "get_alerts", Arguments: map[string]any{"state": 5.0}},
		{ToolName: "get_forecast", Arguments: map[string]any{"latitude": "north", "longitude": 1.0}},
		{ToolName: "get_forecast", Arguments: map[string]any{"latitude": 1.0}},
		{ToolName: "launch_rocket"},
	} {
		_, err := tools.Handle(ctx, req)
		assert.True(t, errors.Is(err, ErrBadRequest), req.ToolName)
	}
}

func TestServe(t *testing.T) {
	srv := newNWS(t, map[string]string{"/alerts/active/area/NY": `{"features":[]}`})
	tools := Tools{Client: NewClient(srv.URL, time.Second, nil)}

	var out bytes.Buffer
	in := strings.NewReader("\n" + `{"tool_name":"get_alerts","arguments":{"state":"NY"}}` + "\n")
	require.NoError(t, tools.Serve(context.Background(), in, &out))
	assert.JSONEq(t, `{"result":"No active alerts for this state."}`, out.String())

	out.Reset()
	err := tools.Serve(context.Background(), strings.NewReader("not json\n"), &out)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Empty(t, out.String())
}
