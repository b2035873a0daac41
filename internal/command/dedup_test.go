package command

import (
	"testing"
	"time"
)

func TestDedupCacheDropsRepeatedID(t *testing.T) {
	d := newDedupCache(time.Minute)

	if d.seen(1) {
		t.Fatal("first sighting of an id should not be a duplicate")
	}
	if !d.seen(1) {
		t.Fatal("second sighting within the window should be a duplicate")
	}
}

func TestDedupCacheEvictsAfterWindow(t *testing.T) {
	d := newDedupCache(10 * time.Millisecond)

	d.seen(7)
	time.Sleep(20 * time.Millisecond)
	if d.seen(7) {
		t.Fatal("expected the id to have been evicted after the window elapsed")
	}
}
