package dsl

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/codex-k8s/tool-relay/internal/constants"
)

// Defaults applied by Validate.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultSSEPath           = "/sse"
	DefaultMessagesPath      = "/messages/"
	DefaultMCPPath           = "/mcp"
	DefaultKeepAliveInterval = "60s"
	DefaultHandlerTimeout    = "60s"
	DefaultMaxBodyBytes      = 1 << 20
)

// Validate applies defaults and verifies required fields.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	applyDefaults(cfg)

	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	srv := &cfg.Server
	switch srv.Delivery {
	case constants.DeliverySync, constants.DeliveryPush:
	default:
		add("server.delivery must be %s or %s", constants.DeliverySync, constants.DeliveryPush)
	}
	if srv.HTTP.Port < 1 || srv.HTTP.Port > 65535 {
		add("server.http.port must be between 1 and 65535")
	}
	for name, path := range map[string]string{
		"server.http.sse_path":      srv.HTTP.SSEPath,
		"server.http.messages_path": srv.HTTP.MessagesPath,
	} {
		if !strings.HasPrefix(path, "/") {
			add("%s must start with /", name)
		}
	}
	if strings.TrimRight(srv.HTTP.SSEPath, "/") == strings.TrimRight(srv.HTTP.MessagesPath, "/") {
		add("server.http.sse_path and server.http.messages_path must differ")
	}
	if srv.HTTP.MaxBodyBytes < 0 {
		add("server.http.max_body_bytes must be >= 0")
	}
	checkDuration(add, "server.shutdown_timeout", srv.ShutdownTimeout)
	checkDuration(add, "server.http.read_timeout", srv.HTTP.ReadTimeout)
	checkDuration(add, "server.http.idle_timeout", srv.HTTP.IdleTimeout)
	if d, err := time.ParseDuration(srv.Stream.KeepAliveInterval); err != nil || d <= 0 {
		add("server.stream.keepalive_interval must be a positive duration")
	}
	if srv.Stream.QueueSize < 0 {
		add("server.stream.queue_size must be >= 0")
	}
	if srv.Limits.RatePerMinute < 0 {
		add("server.limits.rate_per_minute must be >= 0")
	}
	checkHandler(add, "server.handler", srv.Handler)

	if srv.ResultCache.Enabled {
		if srv.ResultCache.MaxEntries < 0 {
			add("server.result_cache.max_entries must be >= 0")
		}
		checkDuration(add, "server.result_cache.ttl", srv.ResultCache.TTL)
		switch srv.ResultCache.KeyStrategy {
		case constants.CacheKeyStrategyArgumentsHash, constants.CacheKeyStrategyNone:
		default:
			add("server.result_cache.key_strategy must be %s or %s", constants.CacheKeyStrategyArgumentsHash, constants.CacheKeyStrategyNone)
		}
	}

	for i, hook := range srv.StartupHooks {
		if strings.TrimSpace(hook.Command) == "" {
			add("server.startup_hooks[%d].command is required", i)
		}
		checkDuration(add, fmt.Sprintf("server.startup_hooks[%d].timeout", i), hook.Timeout)
	}

	if len(cfg.Tools) == 0 {
		add("at least one tool is required")
	}
	toolNames := map[string]struct{}{}
	for i, tool := range cfg.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			add("tools[%d].name is required", i)
			continue
		}
		if _, exists := toolNames[tool.Name]; exists {
			add("duplicate tool name: %s", tool.Name)
		}
		toolNames[tool.Name] = struct{}{}
		checkDuration(add, fmt.Sprintf("tools[%d].timeout", i), tool.Timeout)
		if typ, ok := tool.InputSchema["type"]; ok && typ != "object" {
			add("tools[%d].input_schema.type must be object", i)
		}
		if tool.Handler != nil {
			checkHandler(add, fmt.Sprintf("tools[%d].handler", i), *tool.Handler)
		}
	}

	return result.ErrorOrNil()
}

func applyDefaults(cfg *Config) {
	srv := &cfg.Server
	if srv.Name == "" {
		srv.Name = "tool-relay"
	}
	if srv.Version == "" {
		srv.Version = "dev"
	}
	srv.Delivery = strings.ToLower(strings.TrimSpace(srv.Delivery))
	if srv.Delivery == "" {
		srv.Delivery = constants.DeliverySync
	}
	if strings.TrimSpace(srv.HTTP.Host) == "" {
		srv.HTTP.Host = DefaultHost
	}
	if srv.HTTP.Port == 0 {
		srv.HTTP.Port = DefaultPort
	}
	if srv.HTTP.SSEPath == "" {
		srv.HTTP.SSEPath = DefaultSSEPath
	}
	if srv.HTTP.MessagesPath == "" {
		srv.HTTP.MessagesPath = DefaultMessagesPath
	}
	if srv.HTTP.MaxBodyBytes == 0 {
		srv.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if srv.Stream.KeepAliveInterval == "" {
		srv.Stream.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if srv.Handler.Timeout == "" {
		srv.Handler.Timeout = DefaultHandlerTimeout
	}
	if srv.MCP.Path == "" {
		srv.MCP.Path = DefaultMCPPath
	}
	if srv.ResultCache.Enabled {
		if srv.ResultCache.TTL == "" {
			srv.ResultCache.TTL = "5m"
		}
		if srv.ResultCache.MaxEntries == 0 {
			srv.ResultCache.MaxEntries = 1000
		}
		srv.ResultCache.KeyStrategy = strings.ToLower(strings.TrimSpace(srv.ResultCache.KeyStrategy))
		if srv.ResultCache.KeyStrategy == "" {
			srv.ResultCache.KeyStrategy = constants.CacheKeyStrategyArgumentsHash
		}
	}
	for i := range cfg.Tools {
		cfg.Tools[i].Name = strings.TrimSpace(cfg.Tools[i].Name)
	}
}

func checkHandler(add func(string, ...any), field string, h HandlerConfig) {
	if strings.TrimSpace(h.Path) == "" {
		add("%s.path is required", field)
	}
	checkDuration(add, field+".timeout", h.Timeout)
	checkDuration(add, field+".kill_grace", h.KillGrace)
}

func checkDuration(add func(string, ...any), field, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		add("%s is invalid: %v", field, err)
		return
	}
	if d < 0 {
		add("%s must not be negative", field)
	}
}
