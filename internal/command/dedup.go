package command

import (
	"sync"
	"time"
)

// dedupCache drops repeated message ids within a fixed window (step 1 of
// spec.md §4.3).
type dedupCache struct {
	mu     sync.Mutex
	window time.Duration
	seenAt map[uint32]time.Time
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{window: window, seenAt: make(map[uint32]time.Time)}
}

func (d *dedupCache) seen(msgID uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked()
	if _, ok := d.seenAt[msgID]; ok {
		return true
	}
	d.seenAt[msgID] = time.Now()
	return false
}

func (d *dedupCache) evictLocked() {
	cutoff := time.Now().Add(-d.window)
	for id, t := range d.seenAt {
		if t.Before(cutoff) {
			delete(d.seenAt, id)
		}
	}
}
