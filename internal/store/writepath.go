package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/DK5EN/mcapp-gateway/internal/metrics"
	"github.com/DK5EN/mcapp-gateway/internal/model"
)

const (
	dedupWindowMS         = 20 * 60 * 1000
	mheardThrottleWindowMS = 2 * 60 * 1000
	telemetryDedupWindowMS = 60 * 1000
)

// shouldFilterMessage implements the drop list from spec.md §4.6 step 1.
func shouldFilterMessage(msg model.Message) (drop bool, reason string) {
	if strings.HasPrefix(msg.Text, "{CET") {
		return true, "cet_prefix"
	}
	if string(msg.SrcType) == "BLE" {
		return true, "src_type_upper_ble"
	}
	if msg.Text == "response" || msg.Src == "response" {
		return true, "src_response"
	}
	if string(msg.SrcType) == "TEST" {
		return true, "src_type_test"
	}
	if msg.Text == "-- invalid character --" {
		return true, "invalid_character_literal"
	}
	if strings.Contains(msg.Text, "No core dump") {
		return true, "core_dump_noise"
	}
	return false, ""
}

// StoreMessage runs the full write path of spec.md §4.6 for one decoded
// message: filter, callsign/relay extraction, tele/ack/echo-ack routing,
// MHeard throttle update-in-place, dedup, insert, plus the signal-log and
// station-position side effects.
func (s *Store) StoreMessage(ctx context.Context, msg model.Message) error {
	if drop, reason := shouldFilterMessage(msg); drop {
		metrics.MessagesFilteredTotal.WithLabelValues(reason).Inc()
		return nil
	}

	callsign := msg.Src
	if i := strings.IndexByte(msg.Src, ','); i >= 0 {
		callsign = msg.Src[:i]
	}

	if msg.Type == model.TypeTele {
		return s.storeTelemetryMessage(ctx, callsign, msg)
	}

	if msg.Type == model.TypeAck {
		return s.applyAck(ctx, msg)
	}

	if idx := strings.Index(msg.Text, ":ack"); idx >= 0 && msg.Type == model.TypeMsg {
		if echoID, ok := parseAckTail(msg.Text[idx:]); ok {
			if err := s.applyEchoAck(ctx, echoID); err != nil {
				return err
			}
		}
	}

	if msg.Type == model.TypeMsg {
		msg.EchoID = extractEchoID(msg.Text)
		msg.ConversationKey = model.ConversationKey(msg.Src, msg.Dst)
	}

	if isMHeardBeacon(msg) {
		updated, err := s.updateMHeardThrottle(ctx, callsign, msg)
		if err != nil {
			return err
		}
		if updated {
			return s.recordSignal(ctx, callsign, msg)
		}
	}

	if msg.MsgID != nil {
		dup, err := s.isDuplicateMsgID(ctx, *msg.MsgID, msg.TimestampMS)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}

	if err := s.insertMessage(ctx, msg); err != nil {
		return err
	}

	if err := s.recordSignal(ctx, callsign, msg); err != nil {
		return err
	}

	if msg.Type == model.TypePos {
		if err := s.upsertPositionFromMessage(ctx, callsign, msg); err != nil {
			return err
		}
	}

	return nil
}

func isMHeardBeacon(msg model.Message) bool {
	return msg.Type == model.TypePos && msg.MsgID == nil && msg.SrcType == model.TransportBLE
}

func parseAckTail(tail string) (int, bool) {
	tail = strings.TrimPrefix(tail, ":ack")
	n := 0
	found := false
	for _, r := range tail {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		found = true
	}
	return n, found
}

func extractEchoID(text string) *int {
	idx := strings.LastIndexByte(text, '{')
	if idx < 0 {
		return nil
	}
	tail := text[idx+1:]
	n := 0
	found := false
	for _, r := range tail {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		found = true
	}
	if !found {
		return nil
	}
	return &n
}

func (s *Store) insertMessage(ctx context.Context, msg model.Message) error {
	const q = `INSERT INTO messages
		(msg_id, src, dst, msg, type, timestamp_ms, rssi, snr, src_type, path,
		 hw_id, lora_mod, max_hop, mesh_info, firmware, echo_id, acked, send_success, conversation_key)
		VALUES (:msg_id, :src, :dst, :msg, :type, :timestamp_ms, :rssi, :snr, :src_type, :path,
		 :hw_id, :lora_mod, :max_hop, :mesh_info, :firmware, :echo_id, :acked, :send_success, :conversation_key)`
	return s.writer.submit(ctx, "insert_message", func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, msg)
		return err
	})
}

func (s *Store) isDuplicateMsgID(ctx context.Context, msgID uint32, timestampMS int64) (bool, error) {
	var count int
	err := s.readDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE msg_id = ? AND timestamp_ms >= ?`,
		msgID, timestampMS-dedupWindowMS)
	return count > 0, err
}

func (s *Store) applyAck(ctx context.Context, msg model.Message) error {
	if msg.MsgID == nil {
		return nil
	}
	return s.writer.submit(ctx, "apply_ack", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE messages SET send_success = 1 WHERE id = (
				SELECT id FROM messages WHERE msg_id = ? ORDER BY timestamp_ms DESC LIMIT 1
			)`, *msg.MsgID)
		return err
	})
}

func (s *Store) applyEchoAck(ctx context.Context, echoID int) error {
	return s.writer.submit(ctx, "apply_echo_ack", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE messages SET acked = 1 WHERE id = (
				SELECT id FROM messages WHERE echo_id = ? ORDER BY timestamp_ms DESC LIMIT 1
			)`, echoID)
		return err
	})
}

// updateMHeardThrottle updates an existing MHeard row in place if one
// exists for callsign within the 2-minute throttle window; it returns
// true if it handled the write (caller should not also insert).
func (s *Store) updateMHeardThrottle(ctx context.Context, callsign string, msg model.Message) (bool, error) {
	var existingID int64
	err := s.readDB.GetContext(ctx, &existingID,
		`SELECT id FROM messages WHERE src = ? AND type = 'pos' AND src_type = 'ble'
		 AND timestamp_ms >= ? ORDER BY timestamp_ms DESC LIMIT 1`,
		callsign, msg.TimestampMS-mheardThrottleWindowMS)
	if err != nil {
		return false, nil // no existing row within window: not an error, just a miss
	}

	err = s.writer.submit(ctx, "mheard_throttle_update", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE messages SET rssi = ?, snr = ?, timestamp_ms = ?, msg = ? WHERE id = ?`,
			msg.RSSI, msg.SNR, msg.TimestampMS, msg.Text, existingID)
		return err
	})
	return err == nil, err
}

func (s *Store) recordSignal(ctx context.Context, callsign string, msg model.Message) error {
	if !model.ValidSignal(msg.RSSI, msg.SNR) {
		return nil
	}
	if err := s.writer.submit(ctx, "insert_signal_log", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO signal_log (callsign, rssi, snr, timestamp_ms) VALUES (?, ?, ?, ?)`,
			callsign, msg.RSSI, msg.SNR, msg.TimestampMS)
		return err
	}); err != nil {
		return err
	}

	if flushed := s.accum.observe(callsign, msg.RSSI, msg.SNR, msg.TimestampMS); flushed != nil {
		return s.insertSignalBucket(ctx, *flushed)
	}
	return nil
}

func (s *Store) insertSignalBucket(ctx context.Context, b model.SignalBucket) error {
	return s.writer.submit(ctx, "insert_signal_bucket", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO signal_buckets (callsign, bucket_start_ms, rssi_avg, rssi_min, rssi_max, snr_avg, snr_min, snr_max, count)
			 VALUES (?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(callsign, bucket_start_ms) DO UPDATE SET
				rssi_avg=excluded.rssi_avg, rssi_min=excluded.rssi_min, rssi_max=excluded.rssi_max,
				snr_avg=excluded.snr_avg, snr_min=excluded.snr_min, snr_max=excluded.snr_max, count=excluded.count`,
			b.Callsign, b.BucketStart, b.RSSIAvg, b.RSSIMin, b.RSSIMax, b.SNRAvg, b.SNRMin, b.SNRMax, b.Count)
		return err
	})
}

// storeTelemetryMessage applies the telemetry dedup rule of spec.md §3:
// drop all-zero readings, and within a 60s window keep whichever row has
// non-zero sensor values.
func (s *Store) storeTelemetryMessage(ctx context.Context, callsign string, msg model.Message) error {
	tele, ok := parseTelemetryFromMessage(msg)
	if !ok {
		return nil
	}
	tele.Callsign = callsign
	tele.TimestampMS = msg.TimestampMS

	if tele.AllZero() {
		return nil
	}

	var existingID int64
	var existingAllZero bool
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, (v1=0 AND v2=0 AND v3=0 AND v4=0 AND v5=0) FROM telemetry
		 WHERE callsign = ? AND timestamp_ms >= ? ORDER BY timestamp_ms DESC LIMIT 1`,
		callsign, msg.TimestampMS-telemetryDedupWindowMS)
	if err := row.Scan(&existingID, &existingAllZero); err == nil && !existingAllZero {
		return nil // an existing non-zero reading already wins within the window
	}

	if err := s.writer.submit(ctx, "insert_telemetry", func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO telemetry (callsign, timestamp_ms, seq, v1, v2, v3, v4, v5, bits)
			 VALUES (:callsign, :timestamp_ms, :seq, :v1, :v2, :v3, :v4, :v5, :bits)`, tele)
		return err
	}); err != nil {
		return err
	}

	return s.writer.submit(ctx, "mirror_latest_telemetry", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE station_positions SET latest_telemetry = ? WHERE callsign = ?`,
			telemetryJSON(tele), callsign)
		return err
	})
}

func parseTelemetryFromMessage(msg model.Message) (model.Telemetry, bool) {
	// The storage layer is handed pre-parsed telemetry via msg.Text
	// carrying the raw "T#seq,..." payload; parsing itself lives in
	// internal/proto/ble to keep wire-format knowledge in one package.
	return telemetryParser(msg.Text)
}

// telemetryParser is overridable in tests; production wiring points it at
// ble.ParseTelemetry via store.SetTelemetryParser during startup.
var telemetryParser = func(string) (model.Telemetry, bool) { return model.Telemetry{}, false }

// SetTelemetryParser wires the BLE/APRS telemetry text parser into the
// storage engine without creating an import cycle between internal/store
// and internal/proto/ble.
func SetTelemetryParser(fn func(string) (model.Telemetry, bool)) { telemetryParser = fn }

func telemetryJSON(t model.Telemetry) string {
	b, err := json.Marshal(struct {
		Seq  int     `json:"seq"`
		V1   float64 `json:"v1"`
		V2   float64 `json:"v2"`
		V3   float64 `json:"v3"`
		V4   float64 `json:"v4"`
		V5   float64 `json:"v5"`
		Bits string  `json:"bits"`
	}{t.Seq, t.V1, t.V2, t.V3, t.V4, t.V5, t.Bits})
	if err != nil {
		return "{}"
	}
	return string(b)
}
