package weather

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPServiceCurrentDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"temperature_2m":21.5,"relative_humidity_2m":60,"surface_pressure":1013.2,"wind_speed_10m":12,"weather_code":1}}`))
	}))
	defer srv.Close()

	svc := newHTTPServiceWithBaseURL(srv.URL)
	cond, err := svc.Current(t.Context(), 48.2, 16.37)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cond.TemperatureC != 21.5 {
		t.Errorf("TemperatureC = %v, want 21.5", cond.TemperatureC)
	}
	if cond.Condition != "partly cloudy" {
		t.Errorf("Condition = %q, want partly cloudy", cond.Condition)
	}
}

func TestHTTPServiceCurrentNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := newHTTPServiceWithBaseURL(srv.URL)
	if _, err := svc.Current(t.Context(), 0, 0); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestWeatherCodeText(t *testing.T) {
	cases := map[int]string{
		0:   "clear",
		2:   "partly cloudy",
		45:  "fog",
		63:  "rain",
		73:  "snow",
		80:  "showers",
		95:  "thunderstorm",
		999: "unknown",
	}
	for code, want := range cases {
		if got := weatherCodeText(code); got != want {
			t.Errorf("weatherCodeText(%d) = %q, want %q", code, got, want)
		}
	}
}
