// Package weather implements the gateway-side half of the weather
// contract (spec.md §1, SPEC_FULL.md §4.8): a small position cache plus
// a Service interface for current conditions. The actual provider is an
// external collaborator; only its contract is specified here.
package weather

import "sync"

// Cache holds the single most recently observed station position used as
// the default query point for `/api/weather` and the `wx`/`weather`
// command when no explicit lat/lon is supplied.
type Cache struct {
	mu  sync.RWMutex
	lat float64
	lon float64
	ok  bool
}

func NewCache() *Cache { return &Cache{} }

// Get returns the cached position. ok is false until Set has been called
// at least once.
func (c *Cache) Get() (lat, lon float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lat, c.lon, c.ok
}

func (c *Cache) Set(lat, lon float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lat, c.lon, c.ok = lat, lon, true
}
