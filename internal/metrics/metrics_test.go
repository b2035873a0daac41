package metrics

import "testing"

func TestRegisterStoreMetrics_NoPanic(t *testing.T) {
	// RegisterStoreMetrics is sync.Once-guarded so repeated calls (e.g. from
	// multiple store.Open calls in one process) must not panic on
	// duplicate-collector registration.
	RegisterStoreMetrics()
	RegisterStoreMetrics()
}
