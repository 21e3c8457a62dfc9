// Package weather implements the get_alerts and get_forecast capabilities
// against the National Weather Service API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent       = "weather-app/1.0"
	acceptHeader    = "application/geo+json"
	forecastPeriods = 5
)

// Provider degradation messages. They are results, not errors.
const (
	MsgAlertsUnavailable   = "Unable to fetch alerts or no alerts found."
	MsgNoAlerts            = "No active alerts for this state."
	MsgForecastUnavailable = "Unable to fetch forecast data for this location."
	MsgDetailedUnavailable = "Unable to fetch detailed forecast."
)

// Client queries the NWS API.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client for the API rooted at base. Each request is bounded by timeout.
func NewClient(base string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type alertsResponse struct {
	Features *[]struct {
		Properties alertProperties `json:"properties"`
	} `json:"features"`
}

type alertProperties struct {
	Event       string `json:"event"`
	AreaDesc    string `json:"areaDesc"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	Name             string      `json:"name"`
	Temperature      json.Number `json:"temperature"`
	TemperatureUnit  string      `json:"temperatureUnit"`
	WindSpeed        string      `json:"windSpeed"`
	WindDirection    string      `json:"windDirection"`
	DetailedForecast string      `json:"detailedForecast"`
}

// Alerts returns the active alerts for a two-letter state code.
func (c *Client) Alerts(ctx context.Context, state string) string {
	var data alertsResponse
	if err := c.get(ctx, c.base+"/alerts/active/area/"+state, &data); err != nil {
		c.logger.Warn("fetch alerts failed", "state", state, "error", err)
		return MsgAlertsUnavailable
	}
	if data.Features == nil {
		return MsgAlertsUnavailable
	}
	if len(*data.Features) == 0 {
		return MsgNoAlerts
	}
	alerts := make([]string, 0, len(*data.Features))
	for _, feature := range *data.Features {
		alerts = append(alerts, formatAlert(feature.Properties))
	}
	return strings.Join(alerts, "\n---\n")
}

// Forecast returns the next periods of the forecast for a location.
func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) string {
	var points pointsResponse
	pointsURL := fmt.Sprintf("%s/points/%s,%s", c.base, formatCoordinate(latitude), formatCoordinate(longitude))
	if err := c.get(ctx, pointsURL, &points); err != nil || points.Properties.Forecast == "" {
		c.logger.Warn("fetch points failed", "latitude", latitude, "longitude", longitude, "error", err)
		return MsgForecastUnavailable
	}

	var forecast forecastResponse
	if err := c.get(ctx, points.Properties.Forecast, &forecast); err != nil {
		c.logger.Warn("fetch forecast failed", "url", points.Properties.Forecast, "error", err)
		return MsgDetailedUnavailable
	}

	periods := forecast.Properties.Periods
	if len(periods) > forecastPeriods {
		periods = periods[:forecastPeriods]
	}
	out := make([]string, 0, len(periods))
	for _, p := range periods {
		out = append(out, formatPeriod(p))
	}
	return strings.Join(out, "\n---\n")
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatAlert(p alertProperties) string {
	return fmt.Sprintf("\nEvent: %s\nArea: %s\nSeverity: %s\nDescription: %s\nInstructions: %s\n",
		orDefault(p.Event, "Unknown"),
		orDefault(p.AreaDesc, "Unknown"),
		orDefault(p.Severity, "Unknown"),
		orDefault(p.Description, "No description available"),
		orDefault(p.Instruction, "No specific instructions provided"),
	)
}

func formatPeriod(p forecastPeriod) string {
	return fmt.Sprintf("\n%s:\nTemperature: %s°%s\nWind: %s %s\nForecast: %s\n",
		p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast)
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
