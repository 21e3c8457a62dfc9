package dsl

// Config is the top-level YAML configuration.
type Config struct {
	// Server describes the relay settings.
	Server ServerConfig `yaml:"server"`
	// Tools is the capability table.
	Tools []ToolConfig `yaml:"tools"`
}

// ServerConfig defines relay settings.
type ServerConfig struct {
	// Name is the relay name reported over MCP.
	Name string `yaml:"name"`
	// Version is the relay version reported over MCP.
	Version string `yaml:"version"`
	// Delivery selects where results go ("sync" or "push").
	Delivery string `yaml:"delivery"`
	// ShutdownTimeout overrides graceful shutdown duration.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// HTTP configures the HTTP listener and routes.
	HTTP HTTPConfig `yaml:"http"`
	// Stream configures the push channel.
	Stream StreamConfig `yaml:"stream"`
	// Handler is the default capability-handler program.
	Handler HandlerConfig `yaml:"handler"`
	// Limits configures per-session limits.
	Limits LimitsConfig `yaml:"limits"`
	// ResultCache configures optional result caching.
	ResultCache ResultCacheConfig `yaml:"result_cache"`
	// MCP exposes the capability table over the Model Context Protocol.
	MCP MCPConfig `yaml:"mcp"`
	// Log configures logging of tool arguments.
	Log LogConfig `yaml:"log"`
	// StartupHooks defines one-time commands executed on start.
	StartupHooks []HookConfig `yaml:"startup_hooks"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Host is the interface to bind.
	Host string `yaml:"host"`
	// Port is the listen port.
	Port int `yaml:"port"`
	// SSEPath is the push-channel route.
	SSEPath string `yaml:"sse_path"`
	// MessagesPath is the correlated request route.
	MessagesPath string `yaml:"messages_path"`
	// ReadTimeout limits request read time.
	ReadTimeout string `yaml:"read_timeout"`
	// IdleTimeout controls idle connections.
	IdleTimeout string `yaml:"idle_timeout"`
	// MaxBodyBytes caps correlated request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StreamConfig configures the push channel.
type StreamConfig struct {
	// KeepAliveInterval is the keep-alive period.
	KeepAliveInterval string `yaml:"keepalive_interval"`
	// QueueSize is the per-session delivery queue capacity (push mode).
	QueueSize int `yaml:"queue_size"`
}

// HandlerConfig describes a capability-handler program.
type HandlerConfig struct {
	// Path is the handler executable.
	Path string `yaml:"path"`
	// Args are handler arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables.
	Env map[string]string `yaml:"env"`
	// Dir is the working directory.
	Dir string `yaml:"dir"`
	// Timeout bounds one invocation.
	Timeout string `yaml:"timeout"`
	// KillGrace bounds output draining after a forced kill.
	KillGrace string `yaml:"kill_grace"`
}

// LimitsConfig defines per-session limits.
type LimitsConfig struct {
	// RatePerMinute limits invocations per session. Zero disables limiting.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// ResultCacheConfig configures response caching for repeated tool calls.
type ResultCacheConfig struct {
	// Enabled toggles result caching.
	Enabled bool `yaml:"enabled"`
	// TTL controls how long cached results are kept.
	TTL string `yaml:"ttl"`
	// MaxEntries limits the cache size.
	MaxEntries int `yaml:"max_entries"`
	// KeyStrategy selects cache key strategy (arguments_hash, none).
	KeyStrategy string `yaml:"key_strategy"`
}

// MCPConfig configures the MCP endpoint.
type MCPConfig struct {
	// Enabled mounts the MCP streamable HTTP handler.
	Enabled bool `yaml:"enabled"`
	// Path is the MCP route.
	Path string `yaml:"path"`
	// Stateless disables MCP session tracking.
	Stateless bool `yaml:"stateless"`
}

// LogConfig configures argument logging.
type LogConfig struct {
	// RedactKeys adds argument keys whose values are never logged.
	RedactKeys []string `yaml:"redact_keys"`
}

// HookConfig defines a startup hook command.
type HookConfig struct {
	// Command is the startup command to run through bash.
	Command string `yaml:"command"`
	// Args are optional arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables for the hook.
	Env map[string]string `yaml:"env"`
	// Timeout controls hook execution duration.
	Timeout string `yaml:"timeout"`
}

// ToolConfig declares a capability.
type ToolConfig struct {
	// Name is the tool name.
	Name string `yaml:"name"`
	// Description explains the tool to the planner.
	Description string `yaml:"description"`
	// Timeout overrides the handler timeout for this tool.
	Timeout string `yaml:"timeout"`
	// InputSchema defines JSON Schema for tool input.
	InputSchema map[string]any `yaml:"input_schema"`
	// Handler overrides the default handler program.
	Handler *HandlerConfig `yaml:"handler,omitempty"`
	// Cacheable opts the tool into the result cache.
	Cacheable bool `yaml:"cacheable"`
}
