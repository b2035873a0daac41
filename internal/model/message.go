// Package model holds the canonical, typed record shapes shared by every
// subsystem: the router, the transport adapters, the command engine and the
// storage engine all speak these types rather than passing maps around.
package model

import (
	"strconv"
	"strings"
)

// MessageType is the closed set of wire message kinds.
type MessageType string

const (
	TypeMsg  MessageType = "msg"
	TypePos  MessageType = "pos"
	TypeAck  MessageType = "ack"
	TypeTele MessageType = "tele"
)

// SourceTransport tags where a Message entered the gateway.
type SourceTransport string

const (
	TransportBLE  SourceTransport = "ble"
	TransportLoRa SourceTransport = "lora"
	TransportNode SourceTransport = "node"
)

// Message is the central entity of the data model (spec.md §3).
type Message struct {
	ID int64 `db:"id"`

	// MsgID is the 32-bit mesh message id. Absent (nil) for beacon-style
	// packets that carry no id of their own.
	MsgID *uint32 `db:"msg_id"`

	Src            string          `db:"src"`
	Dst            string          `db:"dst"`
	Text           string          `db:"msg"`
	Type           MessageType     `db:"type"`
	TimestampMS    int64           `db:"timestamp_ms"`
	RSSI           int             `db:"rssi"`
	SNR            float64         `db:"snr"`
	SrcType        SourceTransport `db:"src_type"`
	Path           string          `db:"path"`
	HWID           int             `db:"hw_id"`
	LoraMod        int             `db:"lora_mod"`
	MaxHop         int             `db:"max_hop"`
	MeshInfo       int             `db:"mesh_info"`
	Firmware       string          `db:"firmware"`
	EchoID         *int            `db:"echo_id"`
	Acked          bool            `db:"acked"`
	SendSuccess    bool            `db:"send_success"`
	ConversationKey string         `db:"conversation_key"`
}

// IsBroadcastDst reports whether dst names "everyone" rather than a group
// or a specific station.
func IsBroadcastDst(dst string) bool {
	switch strings.ToUpper(strings.TrimSpace(dst)) {
	case "", "*", "ALL":
		return true
	default:
		return false
	}
}

// IsGroupDst reports whether dst is a numeric group address 1-99999.
func IsGroupDst(dst string) bool {
	dst = strings.TrimSpace(dst)
	if dst == "" {
		return false
	}
	for _, r := range dst {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(dst)
	return err == nil && n >= 1 && n <= 99999
}

// BaseCallsign strips an SSID suffix ("-N") from a callsign.
func BaseCallsign(call string) string {
	if i := strings.IndexByte(call, '-'); i >= 0 {
		return call[:i]
	}
	return call
}

// ConversationKey derives the symmetric thread identifier described in
// spec.md §3: groups/TEST/* key on the upper-cased destination, direct
// messages key on the sorted pair of base callsigns joined with "<>".
func ConversationKey(src, dst string) string {
	dst = strings.TrimSpace(dst)
	upper := strings.ToUpper(dst)
	if IsGroupDst(dst) || upper == "TEST" || upper == "*" {
		return upper
	}
	a, b := BaseCallsign(strings.ToUpper(src)), BaseCallsign(strings.ToUpper(dst))
	if a > b {
		a, b = b, a
	}
	return a + "<>" + b
}

// StationPosition is one row per callsign, upserted from position beacons
// and MHeard reports (spec.md §3).
type StationPosition struct {
	Callsign       string   `db:"callsign"`
	Lat            float64  `db:"lat"`
	Lon            float64  `db:"lon"`
	AltM           float64  `db:"alt_m"`
	Symbol         string   `db:"symbol"`
	SymbolGroup    string   `db:"symbol_group"`
	Battery        *float64 `db:"battery"`
	Gateway        bool     `db:"gateway"`
	HWID           int      `db:"hw_id"`
	Firmware       string   `db:"firmware"`
	ShortestPath   string   `db:"shortest_path"`
	ObservedPaths  string   `db:"observed_paths"` // newline-joined set
	LastRSSI       int      `db:"last_rssi"`
	LastSNR        float64  `db:"last_snr"`
	PositionTSMS   int64    `db:"position_ts_ms"`
	SignalTSMS     int64    `db:"signal_ts_ms"`
	LastSeenMS     int64    `db:"last_seen_ms"`
	LatestTelemetry string  `db:"latest_telemetry"` // JSON blob mirror
}

// SignalSample is a single raw MHeard measurement, valid when rssi/snr fall
// inside the ranges named in spec.md §3.
type SignalSample struct {
	Callsign    string
	RSSI        int
	SNR         float64
	TimestampMS int64
}

const (
	MinValidRSSI = -140
	MaxValidRSSI = -30
	MinValidSNR  = -30.0
	MaxValidSNR  = 12.0

	BucketSeconds       = 300
	HourlyBucketSeconds = 3600
)

// ValidSignal reports whether a sample's rssi/snr lie in the valid ranges.
func ValidSignal(rssi int, snr float64) bool {
	return rssi >= MinValidRSSI && rssi <= MaxValidRSSI && snr >= MinValidSNR && snr <= MaxValidSNR
}

// SignalBucket is a flushed aggregate over a bucket window (5-min or 1-hour).
type SignalBucket struct {
	Callsign    string  `db:"callsign"`
	BucketStart int64   `db:"bucket_start_ms"`
	RSSIAvg     float64 `db:"rssi_avg"`
	RSSIMin     int     `db:"rssi_min"`
	RSSIMax     int     `db:"rssi_max"`
	SNRAvg      float64 `db:"snr_avg"`
	SNRMin      float64 `db:"snr_min"`
	SNRMax      float64 `db:"snr_max"`
	Count       int     `db:"count"`
}

// Telemetry is the append-only telemetry table row (spec.md §3).
type Telemetry struct {
	ID          int64   `db:"id"`
	Callsign    string  `db:"callsign"`
	TimestampMS int64   `db:"timestamp_ms"`
	Seq         int     `db:"seq"`
	V1          float64 `db:"v1"`
	V2          float64 `db:"v2"`
	V3          float64 `db:"v3"`
	V4          float64 `db:"v4"`
	V5          float64 `db:"v5"`
	Bits        string  `db:"bits"`
}

// AllZero reports whether every sensor value is zero (these readings are
// dropped entirely per spec.md §3).
func (t Telemetry) AllZero() bool {
	return t.V1 == 0 && t.V2 == 0 && t.V3 == 0 && t.V4 == 0 && t.V5 == 0
}
