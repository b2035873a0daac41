package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/metrics"
	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// Retention durations from spec.md §3's retention table.
const (
	RetentionMsgDays            = 30
	RetentionPosDays            = 8
	RetentionAckLikeDays        = 8
	RetentionSignalLogDays      = 8
	RetentionBucket5MinDays     = 8
	RetentionBucketHourlyDays   = 365
	RetentionTelemetryDays      = 365
	RetentionStationInactiveDays = 30

	// SizeTriggerBytes is the database-file size cap from spec.md §3.
	SizeTriggerBytes = 1 << 30 // 1 GiB
	// SizeTriggerTargetFraction is the fraction of the cap the pruner
	// drives the file size back down to.
	SizeTriggerTargetFraction = 0.9
)

// RetentionManager runs the nightly pruner/aggregator described in
// spec.md §3/§4.6.1: a struct wrapping the store handle, invoked through
// a single Run(ctx) method with per-step logging, performing SQLite
// DELETE-based pruning plus a size-triggered VACUUM.
type RetentionManager struct {
	store *Store
	log   *zap.Logger
}

// NewRetentionManager builds a RetentionManager bound to an open Store.
func NewRetentionManager(store *Store, log *zap.Logger) *RetentionManager {
	return &RetentionManager{store: store, log: log.Named("retention")}
}

// Run executes one full maintenance pass: age-based pruning for every
// table in spec.md §3's retention table, the nightly 5-min -> 1-hour
// bucket rollup, station-position inactivity pruning, and — only if the
// database file exceeds the size cap — the size-triggered pruner and a
// VACUUM (spec.md §3, last paragraph).
func (m *RetentionManager) Run(ctx context.Context) error {
	now := time.Now().UnixMilli()

	if err := m.pruneByAge(ctx, "messages", "timestamp_ms", now-daysToMS(RetentionMsgDays), "type = 'msg'"); err != nil {
		return fmt.Errorf("retention: pruning msg rows: %w", err)
	}
	if err := m.pruneByAge(ctx, "messages", "timestamp_ms", now-daysToMS(RetentionPosDays), "type = 'pos'"); err != nil {
		return fmt.Errorf("retention: pruning pos rows: %w", err)
	}
	if err := m.pruneByAge(ctx, "messages", "timestamp_ms", now-daysToMS(RetentionAckLikeDays), "type = 'ack'"); err != nil {
		return fmt.Errorf("retention: pruning ack rows: %w", err)
	}
	if err := m.pruneByAge(ctx, "signal_log", "timestamp_ms", now-daysToMS(RetentionSignalLogDays), ""); err != nil {
		return fmt.Errorf("retention: pruning signal_log: %w", err)
	}
	if err := m.pruneByAge(ctx, "telemetry", "timestamp_ms", now-daysToMS(RetentionTelemetryDays), ""); err != nil {
		return fmt.Errorf("retention: pruning telemetry: %w", err)
	}
	if err := m.pruneByAge(ctx, "signal_buckets_hourly", "bucket_start_ms", now-daysToMS(RetentionBucketHourlyDays), ""); err != nil {
		return fmt.Errorf("retention: pruning hourly buckets: %w", err)
	}

	if err := m.rollupOldBuckets(ctx, now-daysToMS(RetentionBucket5MinDays)); err != nil {
		return fmt.Errorf("retention: rolling up buckets: %w", err)
	}

	if err := m.pruneInactiveStations(ctx, now-daysToMS(RetentionStationInactiveDays)); err != nil {
		return fmt.Errorf("retention: pruning inactive stations: %w", err)
	}

	return m.maybeSizePrune(ctx)
}

func daysToMS(days int) int64 { return int64(days) * 24 * 60 * 60 * 1000 }

func (m *RetentionManager) pruneByAge(ctx context.Context, table, tsCol string, cutoffMS int64, extraWhere string) error {
	where := fmt.Sprintf("%s < ?", tsCol)
	if extraWhere != "" {
		where += " AND " + extraWhere
	}
	res, err := execOne(ctx, m.store.writer, "retention_prune_"+table,
		fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), cutoffMS)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		metrics.RetentionRowsPurgedTotal.WithLabelValues(table).Add(float64(n))
		m.log.Info("pruned rows", zap.String("table", table), zap.Int64("rows", n))
	}
	return nil
}

// rollupOldBuckets implements the nightly aggregator: 5-minute buckets
// older than cutoffMS are folded into 1-hour buckets and removed from the
// 5-minute table (spec.md §3).
func (m *RetentionManager) rollupOldBuckets(ctx context.Context, cutoffMS int64) error {
	return m.store.writer.submit(ctx, "rollup_buckets", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signal_buckets_hourly (callsign, bucket_start_ms, rssi_avg, rssi_min, rssi_max, snr_avg, snr_min, snr_max, count)
			SELECT callsign,
			       (bucket_start_ms / ?) * ?,
			       SUM(rssi_avg * count) / SUM(count),
			       MIN(rssi_min), MAX(rssi_max),
			       SUM(snr_avg * count) / SUM(count),
			       MIN(snr_min), MAX(snr_max),
			       SUM(count)
			FROM signal_buckets
			WHERE bucket_start_ms < ?
			GROUP BY callsign, (bucket_start_ms / ?)
			ON CONFLICT(callsign, bucket_start_ms) DO UPDATE SET
				rssi_avg=excluded.rssi_avg, rssi_min=MIN(signal_buckets_hourly.rssi_min, excluded.rssi_min),
				rssi_max=MAX(signal_buckets_hourly.rssi_max, excluded.rssi_max),
				snr_avg=excluded.snr_avg, snr_min=MIN(signal_buckets_hourly.snr_min, excluded.snr_min),
				snr_max=MAX(signal_buckets_hourly.snr_max, excluded.snr_max),
				count=signal_buckets_hourly.count + excluded.count`,
			model.HourlyBucketSeconds*1000, model.HourlyBucketSeconds*1000, cutoffMS, model.HourlyBucketSeconds*1000)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM signal_buckets WHERE bucket_start_ms < ?`, cutoffMS)
		return err
	})
}

func (m *RetentionManager) pruneInactiveStations(ctx context.Context, cutoffMS int64) error {
	res, err := execOne(ctx, m.store.writer, "retention_prune_stations",
		`DELETE FROM station_positions WHERE last_seen_ms < ?`, cutoffMS)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		metrics.RetentionRowsPurgedTotal.WithLabelValues("station_positions").Add(float64(n))
	}
	return nil
}

// maybeSizePrune implements spec.md §3's size-triggered pruner: if the
// database file exceeds SizeTriggerBytes, oldest rows are deleted from
// signal_log, signal_buckets, and messages in that order until the pages
// still in use (page count minus free-list pages) drop to 90% of the cap,
// then the file is compacted with VACUUM.
func (m *RetentionManager) maybeSizePrune(ctx context.Context) error {
	info, err := os.Stat(m.store.path)
	if err != nil {
		return nil // e.g. ":memory:" in tests
	}
	if info.Size() <= SizeTriggerBytes {
		return nil
	}

	m.log.Warn("database exceeds size cap, running size-triggered pruner",
		zap.Int64("size_bytes", info.Size()), zap.Int64("cap_bytes", SizeTriggerBytes))

	target := int64(float64(SizeTriggerBytes) * SizeTriggerTargetFraction)
	for _, table := range []string{"signal_log", "signal_buckets", "messages"} {
		for {
			var liveBytes int64
			if err := m.store.writeDB.GetContext(ctx, &liveBytes,
				`SELECT (page_count - freelist_count) * page_size FROM pragma_page_count(), pragma_freelist_count(), pragma_page_size()`); err != nil || liveBytes <= target {
				break
			}
			res, err := execOne(ctx, m.store.writer, "size_prune_"+table,
				fmt.Sprintf(`DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s ORDER BY rowid ASC LIMIT 1000)`, table, table))
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			if n > 0 {
				metrics.RetentionRowsPurgedTotal.WithLabelValues(table).Add(float64(n))
			}
			if n == 0 {
				break // nothing left to prune in this table
			}
		}
	}

	_, err = m.store.writeDB.ExecContext(ctx, "VACUUM")
	return err
}
