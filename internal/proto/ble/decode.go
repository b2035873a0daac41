// Package ble decodes BLE notification payloads per spec.md §4.4: binary
// mesh frames (shared with the UDP path via internal/proto/meshcom) and
// JSON register dumps dispatched by their "TYP" field.
package ble

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// RegisterType is the closed set of JSON register-dump types the node emits.
type RegisterType string

const (
	TypeMH       RegisterType = "MH" // MHeard beacon
	TypeI        RegisterType = "I"  // info
	TypeSN       RegisterType = "SN"
	TypeG        RegisterType = "G" // GPS
	TypeSA       RegisterType = "SA"
	TypeW        RegisterType = "W"
	TypeIO       RegisterType = "IO"
	TypeTM       RegisterType = "TM"
	TypeAN       RegisterType = "AN"
	TypeSE       RegisterType = "SE"
	TypeSW       RegisterType = "SW"
	TypeS1       RegisterType = "S1"
	TypeS2       RegisterType = "S2"
	TypeCONFFIN  RegisterType = "CONFFIN"
)

// RegisterDump is the generic decoded shape of a "D{...}" JSON notification.
type RegisterDump struct {
	Type RegisterType
	Raw  map[string]any
}

// IsBinaryFrame reports whether a notification payload is a binary mesh
// frame rather than a JSON register dump.
func IsBinaryFrame(payload []byte) bool {
	return len(payload) > 0 && payload[0] == '@'
}

// IsRegisterDump reports whether a notification payload is a "D{" JSON
// register dump.
func IsRegisterDump(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 'D' && payload[1] == '{'
}

// DecodeRegisterDump parses a "D{...}" payload into its typed register dump.
func DecodeRegisterDump(payload []byte) (*RegisterDump, error) {
	if !IsRegisterDump(payload) {
		return nil, fmt.Errorf("ble: not a register dump")
	}
	var raw map[string]any
	if err := json.Unmarshal(payload[1:], &raw); err != nil {
		return nil, fmt.Errorf("ble: json decode: %w", err)
	}
	typRaw, _ := raw["TYP"].(string)
	return &RegisterDump{Type: RegisterType(typRaw), Raw: raw}, nil
}

// GPSPosition is the decoded content of a TYP:G register dump.
type GPSPosition struct {
	Lat, Lon float64
}

// TransformGPS extracts lat/lon from a TYP:G dump, per spec.md §4.4's GPS
// caching rule: only non-zero coordinates are meaningful.
func TransformGPS(d *RegisterDump) (GPSPosition, bool) {
	lat, _ := toFloat(d.Raw["LAT"])
	lon, _ := toFloat(d.Raw["LON"])
	if lat == 0 && lon == 0 {
		return GPSPosition{}, false
	}
	return GPSPosition{Lat: lat, Lon: lon}, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// aprsPositionPattern matches APRS position reports of the form
// "!DDMM.MMN/DDDMM.MMEsymbol" with optional extension fields.
var aprsPositionPattern = regexp.MustCompile(
	`^!(\d{2})(\d{2}\.\d+)([NS])([\\/.])(\d{3})(\d{2}\.\d+)([EW])(.)`)

var (
	altPattern = regexp.MustCompile(`/A=(\d{6})`)
	brgPattern = regexp.MustCompile(`/B=(\d{3})`)
	rngPattern = regexp.MustCompile(`/R=(\d+)`)
	telPattern = regexp.MustCompile(`/[THPQ](\d+)`)
)

// AprsPosition is the decoded content of an APRS position payload.
type AprsPosition struct {
	Lat, Lon    float64
	Symbol      string
	SymbolGroup string
	AltFeet     float64
	HasAlt      bool
}

// ParseAprsPosition decodes a "!DDMM.MMN/DDDMM.MMEsymbol" payload, with the
// "/A=NNNNNN" altitude-in-feet extension when present. AltFeet is returned
// in feet; FeetToMetres converts it, and nothing in this tree calls it.
func ParseAprsPosition(text string) (AprsPosition, bool) {
	m := aprsPositionPattern.FindStringSubmatch(text)
	if m == nil {
		return AprsPosition{}, false
	}
	latDeg, _ := strconv.ParseFloat(m[1], 64)
	latMin, _ := strconv.ParseFloat(m[2], 64)
	lat := latDeg + latMin/60
	if m[3] == "S" {
		lat = -lat
	}
	lonDeg, _ := strconv.ParseFloat(m[5], 64)
	lonMin, _ := strconv.ParseFloat(m[6], 64)
	lon := lonDeg + lonMin/60
	if m[7] == "W" {
		lon = -lon
	}

	pos := AprsPosition{
		Lat:         lat,
		Lon:         lon,
		SymbolGroup: m[4],
		Symbol:      m[8],
	}
	if alt := altPattern.FindStringSubmatch(text); alt != nil {
		ft, _ := strconv.ParseFloat(alt[1], 64)
		pos.AltFeet = ft
		pos.HasAlt = true
	}
	return pos, true
}

// FeetToMetres converts feet to metres for storage (spec.md §3).
func FeetToMetres(feet float64) float64 { return feet * 0.3048 }

// telemetryPattern matches "T#seq,v1,v2,v3,v4,v5,bits" APRS telemetry.
var telemetryPattern = regexp.MustCompile(`^T#(\d+),([\d.]+),([\d.]+),([\d.]+),([\d.]+),([\d.]+),([01]+)$`)

// ParseTelemetry decodes an APRS telemetry payload "T#seq,v1..v5,bits".
func ParseTelemetry(text string) (model.Telemetry, bool) {
	m := telemetryPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return model.Telemetry{}, false
	}
	seq, _ := strconv.Atoi(m[1])
	v1, _ := strconv.ParseFloat(m[2], 64)
	v2, _ := strconv.ParseFloat(m[3], 64)
	v3, _ := strconv.ParseFloat(m[4], 64)
	v4, _ := strconv.ParseFloat(m[5], 64)
	v5, _ := strconv.ParseFloat(m[6], 64)
	return model.Telemetry{
		Seq:  seq,
		V1:   v1,
		V2:   v2,
		V3:   v3,
		V4:   v4,
		V5:   v5,
		Bits: m[7],
	}, true
}

// SplitPath strips the gateway's own callsign from the head of a relay
// path, mirroring the node firmware's own-callsign stripping behaviour.
func SplitPath(path, ownCallsign string) string {
	parts := strings.Split(path, ",")
	if len(parts) == 0 {
		return path
	}
	if model.BaseCallsign(strings.ToUpper(parts[0])) == model.BaseCallsign(strings.ToUpper(ownCallsign)) {
		parts = parts[1:]
	}
	return strings.Join(parts, ",")
}
