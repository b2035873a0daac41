package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openMeteoResponse mirrors the subset of Open-Meteo's current-weather
// payload this gateway consumes.
type openMeteoResponse struct {
	Current struct {
		Temperature2m    float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		SurfacePressure  float64 `json:"surface_pressure"`
		WindSpeed10m     float64 `json:"wind_speed_10m"`
		WeatherCode      int     `json:"weather_code"`
	} `json:"current"`
}

// HTTPService is a minimal Open-Meteo-shaped weather provider: no API key,
// matching /api/weather's key-free contract in spec.md §4.5.
type HTTPService struct {
	client  *http.Client
	baseURL string
}

func NewHTTPService() *HTTPService {
	return newHTTPServiceWithBaseURL("https://api.open-meteo.com/v1/forecast")
}

func newHTTPServiceWithBaseURL(baseURL string) *HTTPService {
	return &HTTPService{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (s *HTTPService) Current(ctx context.Context, lat, lon float64) (*Conditions, error) {
	url := fmt.Sprintf("%s?latitude=%.5f&longitude=%.5f&current=temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,weather_code",
		s.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather provider returned %d", resp.StatusCode)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	return &Conditions{
		TemperatureC: body.Current.Temperature2m,
		HumidityPct:  body.Current.RelativeHumidity,
		PressureHPa:  body.Current.SurfacePressure,
		WindSpeedKPH: body.Current.WindSpeed10m,
		Condition:    weatherCodeText(body.Current.WeatherCode),
		FetchedAtMS:  time.Now().UnixMilli(),
	}, nil
}

// weatherCodeText maps a subset of the WMO weather codes Open-Meteo uses
// to a short human-readable label.
func weatherCodeText(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "showers"
	case code <= 99:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
