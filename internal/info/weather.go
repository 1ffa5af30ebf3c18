// Package info implements the spoken info report's data providers:
// current weather, name day, and the voice assistant's transcription and
// completion backends. Every provider is a plain request/response HTTP
// client; callers degrade to a spoken fallback on any error.
package info

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// defaultWeatherURL is the Open-Meteo forecast endpoint.
const defaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

// WeatherClient fetches current conditions from an Open-Meteo compatible
// API and renders them as a spoken sentence.
type WeatherClient struct {
	httpClient *http.Client
	baseURL    string
	latitude   float64
	longitude  float64
	logger     *slog.Logger
}

// NewWeatherClient creates a weather provider for fixed coordinates. An
// empty baseURL selects the public Open-Meteo endpoint.
func NewWeatherClient(baseURL string, latitude, longitude float64, logger *slog.Logger) *WeatherClient {
	if baseURL == "" {
		baseURL = defaultWeatherURL
	}
	return &WeatherClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		latitude:   latitude,
		longitude:  longitude,
		logger:     logger.With("subsystem", "weather"),
	}
}

// currentWeather mirrors the current_weather object of the forecast
// response.
type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
}

type forecastResponse struct {
	CurrentWeather currentWeather `json:"current_weather"`
}

// Weather returns a spoken-form description of the current conditions at
// the configured coordinates.
func (c *WeatherClient) Weather(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current_weather=true",
		c.baseURL, c.latitude, c.longitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("weather: creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather: service returned status %d", resp.StatusCode)
	}

	var fc forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return "", fmt.Errorf("weather: decoding response: %w", err)
	}

	cw := fc.CurrentWeather
	text := fmt.Sprintf("%s, %.0f degrees, wind %.0f kilometers per hour.",
		describeWeatherCode(cw.WeatherCode), cw.Temperature, cw.WindSpeed)

	c.logger.Debug("weather fetched",
		"code", cw.WeatherCode,
		"temperature", cw.Temperature,
	)
	return text, nil
}

// describeWeatherCode maps WMO weather interpretation codes to spoken
// phrases. Codes outside the table collapse to their coarse group.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code >= 85 && code <= 86:
		return "Snow showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Changeable weather"
	}
}
