package store

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// PositionUpdate carries the fields a position beacon or MHeard report
// contributes to a station_positions upsert (spec.md §3).
type PositionUpdate struct {
	Callsign    string
	Lat, Lon    float64
	AltM        float64
	Symbol      string
	SymbolGroup string
	Battery     *float64
	Gateway     bool
	HWID        int
	Firmware    string
	Path        string
	RSSI        int
	SNR         float64
	TimestampMS int64
}

func (s *Store) upsertPositionFromMessage(ctx context.Context, callsign string, msg model.Message) error {
	return s.UpsertPosition(ctx, PositionUpdate{
		Callsign:    callsign,
		TimestampMS: msg.TimestampMS,
		RSSI:        msg.RSSI,
		SNR:         msg.SNR,
		Path:        msg.Path,
		HWID:        msg.HWID,
		Firmware:    msg.Firmware,
	})
}

// UpsertPosition applies the upsert policy of spec.md §3: newer beacons
// overwrite location fields; non-empty firmware/symbol never overwrite
// with empty; shortest observed path wins on ties; last-seen is monotonic
// non-decreasing.
func (s *Store) UpsertPosition(ctx context.Context, u PositionUpdate) error {
	if u.Lat == 0 && u.Lon == 0 && u.Symbol == "" && u.Firmware == "" {
		// Nothing meaningful to upsert (e.g. a signal-only MHeard sample).
		return nil
	}

	return s.writer.submit(ctx, "upsert_position", func(tx *sqlx.Tx) error {
		var existing model.StationPosition
		err := tx.GetContext(ctx, &existing, `SELECT * FROM station_positions WHERE callsign = ?`, u.Callsign)
		if err != nil {
			return s.insertPosition(ctx, tx, u)
		}

		symbol := u.Symbol
		if symbol == "" {
			symbol = existing.Symbol
		}
		symbolGroup := u.SymbolGroup
		if symbolGroup == "" {
			symbolGroup = existing.SymbolGroup
		}
		firmware := u.Firmware
		if firmware == "" {
			firmware = existing.Firmware
		}

		lat, lon, altM := existing.Lat, existing.Lon, existing.AltM
		positionTS := existing.PositionTSMS
		if u.Lat != 0 || u.Lon != 0 {
			lat, lon, altM = u.Lat, u.Lon, u.AltM
			if u.TimestampMS > existing.PositionTSMS {
				positionTS = u.TimestampMS
			}
		}

		shortestPath := existing.ShortestPath
		observedPaths := existing.ObservedPaths
		if u.Path != "" {
			if !strings.Contains("\n"+observedPaths+"\n", "\n"+u.Path+"\n") {
				if observedPaths == "" {
					observedPaths = u.Path
				} else {
					observedPaths = observedPaths + "\n" + u.Path
				}
			}
			hops := strings.Count(u.Path, ",") + 1
			existingHops := strings.Count(shortestPath, ",") + 1
			if shortestPath == "" || hops < existingHops {
				shortestPath = u.Path
			}
		}

		lastSeen := existing.LastSeenMS
		if u.TimestampMS > lastSeen {
			lastSeen = u.TimestampMS
		}
		signalTS := existing.SignalTSMS
		lastRSSI, lastSNR := existing.LastRSSI, existing.LastSNR
		if u.RSSI != 0 || u.SNR != 0 {
			lastRSSI, lastSNR = u.RSSI, u.SNR
			if u.TimestampMS > existing.SignalTSMS {
				signalTS = u.TimestampMS
			}
		}

		_, execErr := tx.ExecContext(ctx, `UPDATE station_positions SET
			lat=?, lon=?, alt_m=?, symbol=?, symbol_group=?, gateway=?, hw_id=?, firmware=?,
			shortest_path=?, observed_paths=?, last_rssi=?, last_snr=?,
			position_ts_ms=?, signal_ts_ms=?, last_seen_ms=?
			WHERE callsign=?`,
			lat, lon, altM, symbol, symbolGroup, u.Gateway || existing.Gateway, orInt(u.HWID, existing.HWID), firmware,
			shortestPath, observedPaths, lastRSSI, lastSNR,
			positionTS, signalTS, lastSeen, u.Callsign)
		return execErr
	})
}

func (s *Store) insertPosition(ctx context.Context, tx *sqlx.Tx, u PositionUpdate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO station_positions
		(callsign, lat, lon, alt_m, symbol, symbol_group, gateway, hw_id, firmware,
		 shortest_path, observed_paths, last_rssi, last_snr, position_ts_ms, signal_ts_ms, last_seen_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.Callsign, u.Lat, u.Lon, u.AltM, u.Symbol, u.SymbolGroup, u.Gateway, u.HWID, u.Firmware,
		u.Path, u.Path, u.RSSI, u.SNR, u.TimestampMS, u.TimestampMS, u.TimestampMS)
	return err
}

func orInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
