package command

import (
	"strings"
	"sync"
	"time"

	"github.com/DK5EN/mcapp-gateway/internal/metrics"
)

const (
	abuseFailureThreshold = 3
	abuseFailureWindow    = 5 * time.Minute
	abuseBlockDuration    = 25 * time.Minute
)

// abuseTracker implements spec.md §4.3 step 4 and §8 invariant 6: three
// failed attempts within 5 minutes blocks the sender for 25 minutes, with
// a single courtesy reply on the first message after the block begins.
type abuseTracker struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	blocked  map[string]time.Time // src -> block expiry
	notified map[string]bool      // src -> courtesy notice already sent for this block
}

func newAbuseTracker() *abuseTracker {
	return &abuseTracker{
		failures: make(map[string][]time.Time),
		blocked:  make(map[string]time.Time),
		notified: make(map[string]bool),
	}
}

func key(src string) string { return strings.ToUpper(src) }

func (a *abuseTracker) recordFailure(src string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(src)
	now := time.Now()

	cutoff := now.Add(-abuseFailureWindow)
	var kept []time.Time
	for _, t := range a.failures[k] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	a.failures[k] = kept

	if len(kept) >= abuseFailureThreshold {
		if _, already := a.blocked[k]; !already {
			metrics.CommandAbuseBlocksTotal.Inc()
		}
		a.blocked[k] = now.Add(abuseBlockDuration)
		a.notified[k] = false
		a.failures[k] = nil
	}
}

func (a *abuseTracker) isBlocked(src string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(src)
	expiry, ok := a.blocked[k]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(a.blocked, k)
		delete(a.notified, k)
		return false
	}
	return true
}

// consumeCourtesyNotice reports whether the single courtesy reply for the
// current block period has not yet been sent, and marks it sent.
func (a *abuseTracker) consumeCourtesyNotice(src string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key(src)
	if a.notified[k] {
		return false
	}
	a.notified[k] = true
	return true
}
