package command

import (
	"testing"
	"time"
)

func TestThrottleCacheFirstHitIsAlwaysClean(t *testing.T) {
	tc := newThrottleCache()
	if tc.hit("WX", "DK5EN-1|OE5HWN-12") {
		t.Fatal("first sighting should never throttle")
	}
}

func TestThrottleCacheRepeatWithinWindowHits(t *testing.T) {
	tc := newThrottleCache()
	tc.hit("WX", "k")
	if !tc.hit("WX", "k") {
		t.Fatal("immediate repeat within the default window should throttle")
	}
}

func TestThrottleCacheShortCommandRepeatInsideWindowHits(t *testing.T) {
	tc := newThrottleCache()
	tc.hit("DICE", "k")
	time.Sleep(10 * time.Millisecond)
	// DICE's override window is 5s so this repeat is still within it.
	if !tc.hit("DICE", "k") {
		t.Fatal("expected repeat well inside the 5s DICE window to throttle")
	}
}

func TestThrottleWindowForKnownAndUnknownCommands(t *testing.T) {
	if got := throttleWindowFor("dice"); got != 5*time.Second {
		t.Errorf("throttleWindowFor(dice) = %v, want 5s", got)
	}
	if got := throttleWindowFor("CTCPING"); got != defaultThrottleWindow {
		t.Errorf("throttleWindowFor(CTCPING) = %v, want default", got)
	}
}
