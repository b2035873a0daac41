package store

import (
	"context"

	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// SmartInitialLimit and AckWindowLimit are the typical parameters cited in
// spec.md §4.5/§8 for the GET /events initial snapshot.
const (
	SmartInitialLimit = 20
	AckWindowLimit    = 200
)

// SmartInitialSnapshot implements the single read-transaction described in
// spec.md §4.5: the last N messages per conversation key (not per
// destination, which would split DM threads across participants), plus
// the full station-positions table, plus the last AckWindowLimit
// ack-bearing messages.
type SmartInitialSnapshot struct {
	Messages  []model.Message
	Positions []model.StationPosition
	Acks      []model.Message
}

func (s *Store) SmartInitialSnapshot(ctx context.Context) (*SmartInitialSnapshot, error) {
	tx, err := s.readDB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var messages []model.Message
	err = tx.SelectContext(ctx, &messages, `
		SELECT * FROM messages WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY conversation_key ORDER BY timestamp_ms DESC
				) AS rn
				FROM messages
			) WHERE rn <= ?
		)
		ORDER BY timestamp_ms ASC`, SmartInitialLimit)
	if err != nil {
		return nil, err
	}

	var positions []model.StationPosition
	if err := tx.SelectContext(ctx, &positions, `SELECT * FROM station_positions`); err != nil {
		return nil, err
	}

	var acks []model.Message
	if err := tx.SelectContext(ctx, &acks, `
		SELECT * FROM messages WHERE acked = 1 OR send_success = 1
		ORDER BY timestamp_ms DESC LIMIT ?`, AckWindowLimit); err != nil {
		return nil, err
	}

	return &SmartInitialSnapshot{Messages: messages, Positions: positions, Acks: acks}, nil
}

// ConversationSummary returns the message count per conversation key, used
// by the "summary" frame of GET /events (spec.md §4.5).
func (s *Store) ConversationSummary(ctx context.Context) (map[string]int, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT conversation_key, COUNT(*) FROM messages GROUP BY conversation_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

// MessagesPage implements the messages_page pagination operation of
// spec.md §4.5: for DMs it computes the conversation key from (src, dst)
// and queries on conversation_key; for groups it queries on dst directly.
func (s *Store) MessagesPage(ctx context.Context, dst, src string, beforeMS int64, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var messages []model.Message
	if model.IsGroupDst(dst) || dst == "TEST" || dst == "*" {
		err := s.readDB.SelectContext(ctx, &messages,
			`SELECT * FROM messages WHERE dst = ? AND timestamp_ms < ? ORDER BY timestamp_ms DESC LIMIT ?`,
			dst, beforeMS, limit)
		return messages, err
	}

	key := model.ConversationKey(src, dst)
	err := s.readDB.SelectContext(ctx, &messages,
		`SELECT * FROM messages WHERE conversation_key = ? AND timestamp_ms < ? ORDER BY timestamp_ms DESC LIMIT ?`,
		key, beforeMS, limit)
	return messages, err
}

// PositionByCallsign looks up one station's latest known position/identity
// row, used by the pos and userinfo commands (spec.md §4.3).
func (s *Store) PositionByCallsign(ctx context.Context, callsign string) (*model.StationPosition, error) {
	var pos model.StationPosition
	err := s.readDB.GetContext(ctx, &pos, `SELECT * FROM station_positions WHERE callsign = ?`, callsign)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

const searchResultLimit = 10

// SearchMessages finds the most recent messages whose text contains term
// (case-insensitive), for the search/s command (spec.md §4.3).
func (s *Store) SearchMessages(ctx context.Context, term string) ([]model.Message, error) {
	var messages []model.Message
	err := s.readDB.SelectContext(ctx, &messages,
		`SELECT * FROM messages WHERE msg LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY timestamp_ms DESC LIMIT ?`,
		term, searchResultLimit)
	return messages, err
}

const telemetryHistoryLimit = 500

// TelemetryHistory returns the most recent raw telemetry readings for one
// callsign, newest first, for the /api/telemetry chart endpoint.
func (s *Store) TelemetryHistory(ctx context.Context, callsign string, sinceMS int64) ([]model.Telemetry, error) {
	var rows []model.Telemetry
	err := s.readDB.SelectContext(ctx, &rows,
		`SELECT * FROM telemetry WHERE callsign = ? AND timestamp_ms >= ?
		 ORDER BY timestamp_ms DESC LIMIT ?`,
		callsign, sinceMS, telemetryHistoryLimit)
	return rows, err
}

// TelemetryDailyAverage is one day's mean sensor values for the yearly
// telemetry rollup (/api/telemetry/yearly).
type TelemetryDailyAverage struct {
	Day string  `db:"day"`
	V1  float64 `db:"v1"`
	V2  float64 `db:"v2"`
	V3  float64 `db:"v3"`
	V4  float64 `db:"v4"`
	V5  float64 `db:"v5"`
}

// TelemetryYearly aggregates telemetry into one daily-average row per day
// over the trailing year, matching the long-horizon retention tiers
// described for signal buckets in spec.md §4.6.
func (s *Store) TelemetryYearly(ctx context.Context, callsign string, sinceMS int64) ([]TelemetryDailyAverage, error) {
	var rows []TelemetryDailyAverage
	err := s.readDB.SelectContext(ctx, &rows, `
		SELECT date(timestamp_ms / 1000, 'unixepoch') AS day,
		       avg(v1) AS v1, avg(v2) AS v2, avg(v3) AS v3, avg(v4) AS v4, avg(v5) AS v5
		FROM telemetry
		WHERE callsign = ? AND timestamp_ms >= ?
		GROUP BY day
		ORDER BY day ASC`, callsign, sinceMS)
	return rows, err
}
