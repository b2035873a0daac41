package store

import (
	"context"
	"sort"
)

// MinDatapointsForStats is the per-callsign inclusion threshold for the
// mHeard statistics read path. spec.md §4.6/§8 fixes this at 10, overriding
// the smaller MIN_DATAPOINTS_FOR_STATS=3 constant found in the original
// Python source (see DESIGN.md: the distilled spec's explicit number wins).
const MinDatapointsForStats = 10

// GapThresholdMultiplier: a gap marker is inserted whenever two consecutive
// bucket timestamps differ by more than this multiple of the bucket size
// (spec.md §4.6/§8).
const GapThresholdMultiplier = 6

// MHeardPoint is one real or gap-marker point in a callsign's signal series.
type MHeardPoint struct {
	Callsign    string
	TimestampMS int64
	IsGap       bool
	RSSIAvg     float64
	RSSIMin     int
	RSSIMax     int
	SNRAvg      float64
	SNRMin      float64
	SNRMax      float64
	Count       int
}

// bucketRow mirrors a signal_buckets row for the mHeard read path.
type bucketRow struct {
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

// MHeardStats implements process_mheard_store_parallel and its
// monthly/yearly counterparts (spec.md §4.6): pulls pre-aggregated buckets
// for [sinceMS, untilMS), groups by callsign, requires at least
// MinDatapointsForStats points, sorts each series by timestamp, and
// inserts gap markers.
func (s *Store) MHeardStats(ctx context.Context, sinceMS, untilMS int64, hourly bool) (map[string][]MHeardPoint, error) {
	table := "signal_buckets"
	bucketSeconds := int64(300)
	if hourly {
		table = "signal_buckets_hourly"
		bucketSeconds = 3600
	}

	var rows []bucketRow
	query := `SELECT callsign, bucket_start_ms, rssi_avg, rssi_min, rssi_max, snr_avg, snr_min, snr_max, count
		FROM ` + table + ` WHERE bucket_start_ms >= ? AND bucket_start_ms < ?`
	if err := s.readDB.SelectContext(ctx, &rows, query, sinceMS, untilMS); err != nil {
		return nil, err
	}

	byCallsign := make(map[string][]bucketRow)
	for _, r := range rows {
		byCallsign[r.Callsign] = append(byCallsign[r.Callsign], r)
	}

	gapThresholdMS := bucketSeconds * 1000 * GapThresholdMultiplier

	result := make(map[string][]MHeardPoint)
	for callsign, series := range byCallsign {
		if len(series) < MinDatapointsForStats {
			continue
		}
		sort.Slice(series, func(i, j int) bool { return series[i].BucketStart < series[j].BucketStart })

		points := make([]MHeardPoint, 0, len(series))
		for i, r := range series {
			if i > 0 {
				gap := r.BucketStart - series[i-1].BucketStart
				if gap > gapThresholdMS {
					points = append(points, MHeardPoint{Callsign: callsign, IsGap: true})
				}
			}
			points = append(points, MHeardPoint{
				Callsign:    callsign,
				TimestampMS: r.BucketStart,
				RSSIAvg:     r.RSSIAvg,
				RSSIMin:     r.RSSIMin,
				RSSIMax:     r.RSSIMax,
				SNRAvg:      r.SNRAvg,
				SNRMin:      r.SNRMin,
				SNRMax:      r.SNRMax,
				Count:       r.Count,
			})
		}
		result[callsign] = points
	}
	return result, nil
}
