package weather

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the weather handler.
type Config struct {
	// APIBase is the National Weather Service API root.
	APIBase string `env:"NWS_API_BASE" envDefault:"https://api.weather.gov"`
	// Timeout bounds each upstream request.
	Timeout time.Duration `env:"WEATHER_TIMEOUT" envDefault:"30s"`
	// LogLevel sets the stderr logger level.
	LogLevel string `env:"WEATHER_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses environment variables into Config.
func LoadConfig() (Config, error) {
	return env.ParseAs[Config]()
}
