package weather

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

// ErrBadRequest marks requests the handler cannot serve: unknown tools or invalid arguments.
var ErrBadRequest = errors.New("bad request")

// Tools routes handler requests to the weather client.
type Tools struct {
	Client *Client
}

// Handle serves one capability request.
func (t Tools) Handle(ctx context.Context, req protocol.HandlerRequest) (string, error) {
	switch req.ToolName {
	case "get_alerts":
		state, err := stringArg(req.Arguments, "state")
		if err != nil {
			return "", err
		}
		return t.Client.Alerts(ctx, strings.ToUpper(state)), nil
	case "get_forecast":
		lat, err := floatArg(req.Arguments, "latitude")
		if err != nil {
			return "", err
		}
		lon, err := floatArg(req.Arguments, "longitude")
		if err != nil {
			return "", err
		}
		return t.Client.Forecast(ctx, lat, lon), nil
	default:
		return "", fmt.Errorf("%w: unknown tool %q", ErrBadRequest, req.ToolName)
	}
}

func stringArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: missing argument %s", ErrBadRequest, name)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: argument %s must be a non-empty string", ErrBadRequest, name)
	}
	return strings.TrimSpace(value), nil
}

func floatArg(args map[string]any, name string) (float64, error) {
	raw, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %s", ErrBadRequest, name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: argument %s must be a number", ErrBadRequest, name)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: argument %s must be a number", ErrBadRequest, name)
	}
}
