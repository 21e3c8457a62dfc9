package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the relay.
type Config struct {
	// ConfigPath is the path to the YAML configuration file. Empty selects the embedded default.
	ConfigPath string `env:"RELAY_CONFIG"`
	// LogLevel sets the logger level.
	LogLevel string `env:"RELAY_LOG_LEVEL" envDefault:"info"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Host overrides server.http.host.
	Host string `env:"RELAY_HOST"`
	// Port overrides server.http.port.
	Port int `env:"RELAY_PORT"`
	// HandlerPath overrides server.handler.path.
	HandlerPath string `env:"RELAY_HANDLER_PATH"`
	// Delivery overrides server.delivery (sync or push).
	Delivery string `env:"RELAY_DELIVERY"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
