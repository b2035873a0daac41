package store

import (
	"sync"

	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// pendingBucket accumulates samples for one (callsign, bucket) pair.
type pendingBucket struct {
	bucketStartMS int64
	rssiSum       int
	rssiMin       int
	rssiMax       int
	snrSum        float64
	snrMin        float64
	snrMax        float64
	count         int
}

func newPendingBucket(bucketStartMS int64, rssi int, snr float64) *pendingBucket {
	return &pendingBucket{
		bucketStartMS: bucketStartMS,
		rssiSum:       rssi,
		rssiMin:       rssi,
		rssiMax:       rssi,
		snrSum:        snr,
		snrMin:        snr,
		snrMax:        snr,
		count:         1,
	}
}

func (p *pendingBucket) add(rssi int, snr float64) {
	p.rssiSum += rssi
	p.snrSum += snr
	p.count++
	if rssi < p.rssiMin {
		p.rssiMin = rssi
	}
	if rssi > p.rssiMax {
		p.rssiMax = rssi
	}
	if snr < p.snrMin {
		p.snrMin = snr
	}
	if snr > p.snrMax {
		p.snrMax = snr
	}
}

func (p *pendingBucket) toRow(callsign string) model.SignalBucket {
	return model.SignalBucket{
		Callsign:    callsign,
		BucketStart: p.bucketStartMS,
		RSSIAvg:     float64(p.rssiSum) / float64(p.count),
		RSSIMin:     p.rssiMin,
		RSSIMax:     p.rssiMax,
		SNRAvg:      p.snrSum / float64(p.count),
		SNRMin:      p.snrMin,
		SNRMax:      p.snrMax,
		Count:       p.count,
	}
}

// bucketAccumulator is the in-memory 5-minute signal-bucket accumulator of
// spec.md §3: samples are kept in memory keyed by (callsign, bucket start)
// and flushed as a row only once a later sample arrives for the same
// callsign in a newer bucket — an eventually-consistent design documented
// in spec.md §5.
type bucketAccumulator struct {
	mu      sync.Mutex
	pending map[string]*pendingBucket
}

func newBucketAccumulator() *bucketAccumulator {
	return &bucketAccumulator{pending: make(map[string]*pendingBucket)}
}

func bucketStart(timestampMS int64, bucketSeconds int64) int64 {
	bucketMS := bucketSeconds * 1000
	return (timestampMS / bucketMS) * bucketMS
}

// observe feeds one valid signal sample into the accumulator. If the
// sample lands in a newer bucket than the pending one for this callsign,
// the pending bucket is returned for flushing to storage.
func (a *bucketAccumulator) observe(callsign string, rssi int, snr float64, timestampMS int64) (flushed *model.SignalBucket) {
	start := bucketStart(timestampMS, model.BucketSeconds)

	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.pending[callsign]
	if !ok {
		a.pending[callsign] = newPendingBucket(start, rssi, snr)
		return nil
	}
	if start == cur.bucketStartMS {
		cur.add(rssi, snr)
		return nil
	}
	if start > cur.bucketStartMS {
		row := cur.toRow(callsign)
		a.pending[callsign] = newPendingBucket(start, rssi, snr)
		return &row
	}
	// Sample is older than the pending bucket (out-of-order arrival):
	// fold it into the existing pending bucket rather than regressing.
	cur.add(rssi, snr)
	return nil
}

// flushAll drains every pending bucket, used on shutdown (spec.md §5).
func (a *bucketAccumulator) flushAll() []model.SignalBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]model.SignalBucket, 0, len(a.pending))
	for callsign, p := range a.pending {
		rows = append(rows, p.toRow(callsign))
	}
	a.pending = make(map[string]*pendingBucket)
	return rows
}

// pendingSampleCount reports the number of samples held in open in-flight
// buckets, the quantity used by the round-trip law in spec.md §8 ("sum of flushed-bucket
// counts plus in-flight accumulator size equals the count of accepted
// signal samples").
func (a *bucketAccumulator) pendingSampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, p := range a.pending {
		total += p.count
	}
	return total
}
