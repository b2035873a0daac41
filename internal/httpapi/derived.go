package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// handleWeather serves the current conditions at the node's cached
// position (spec.md §4.5 /api/weather), backed by internal/weather.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.weatherCache == nil || s.weatherSvc == nil {
		http.Error(w, "weather not configured", http.StatusServiceUnavailable)
		return
	}
	lat, lon, ok := s.weatherCache.Get()
	if !ok {
		http.Error(w, "no cached position yet", http.StatusServiceUnavailable)
		return
	}
	cond, err := s.weatherSvc.Current(r.Context(), lat, lon)
	if err != nil {
		s.log.Error("weather lookup failed", zapErr(err))
		http.Error(w, "weather lookup failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

const (
	defaultTelemetryHours = 48
	maxTelemetryHours     = 744 // 31 days, matches the original's HTTP-level clamp
)

// handleTelemetry serves recent raw telemetry readings for WX charts
// (spec.md §4.5 /api/telemetry?hours=N&station=CALL).
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Query().Get("station")
	if callsign == "" {
		http.Error(w, "station is required", http.StatusBadRequest)
		return
	}
	hours := defaultTelemetryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	if hours > maxTelemetryHours {
		hours = maxTelemetryHours
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	rows, err := s.store.TelemetryHistory(r.Context(), callsign, since)
	if err != nil {
		s.log.Error("telemetry history query failed", zapErr(err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleTelemetryYearly serves the daily-average telemetry rollup used
// for the long-range WX chart (spec.md §4.5 /api/telemetry/yearly).
func (s *Server) handleTelemetryYearly(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Query().Get("station")
	if callsign == "" {
		http.Error(w, "station is required", http.StatusBadRequest)
		return
	}
	since := time.Now().AddDate(-1, 0, 0).UnixMilli()
	rows, err := s.store.TelemetryYearly(r.Context(), callsign, since)
	if err != nil {
		s.log.Error("telemetry yearly query failed", zapErr(err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleTimezone resolves the UTC offset for a lat/lon pair (spec.md §4.5
// /api/timezone?lat=&lon=). No timezone-polygon lookup library is wired
// in, so the offset is derived from longitude the way solar-time
// approximations commonly are: 15 degrees per hour, rounded to the
// nearest whole hour.
func (s *Server) handleTimezone(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		http.Error(w, "lat and lon query params are required and must be valid coordinates", http.StatusBadRequest)
		return
	}

	offsetHours := math.Round(lon / 15)
	sign := "+"
	if offsetHours < 0 {
		sign = "-"
		offsetHours = -offsetHours
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"utc_offset":   offsetHours,
		"abbreviation": fmt.Sprintf("UTC%s%02d", sign, int(offsetHours)),
	})
}

// handleTime returns server time for frontend clock sync (spec.md §4.5
// /api/time).
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"server_time_ms": now.UnixMilli(),
		"timezone":       "UTC",
	})
}
