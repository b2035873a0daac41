package weather

import "context"

// Conditions carries the fields /api/weather serves.
type Conditions struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	PressureHPa  float64   `json:"pressure_hpa"`
	WindSpeedKPH float64   `json:"wind_speed_kph"`
	Condition    string    `json:"condition"`
	FetchedAtMS  int64     `json:"fetched_at_ms"`
}

// Service is the external weather provider's contract, specified here
// only as the interface the command engine and HTTP API depend on.
type Service interface {
	Current(ctx context.Context, lat, lon float64) (*Conditions, error)
}
