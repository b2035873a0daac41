package command

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/router"
)

func TestBeaconSchedulerStartListStop(t *testing.T) {
	r := router.New(zap.NewNop(), "DK5EN-1")
	s := newBeaconScheduler(zap.NewNop(), r)

	s.start("wide", "Rag chew on 145.500", 30)

	if got := s.list(); got != `WIDE: "Rag chew on 145.500"` {
		t.Fatalf("list() = %q", got)
	}

	if !s.stop("wide") {
		t.Fatal("expected stop to report a beacon was running")
	}
	if got := s.list(); got != "no active topics" {
		t.Fatalf("list() after stop = %q", got)
	}
	if s.stop("wide") {
		t.Fatal("expected second stop to report nothing was running")
	}
}

func TestBeaconSchedulerStartReplacesExisting(t *testing.T) {
	r := router.New(zap.NewNop(), "DK5EN-1")
	s := newBeaconScheduler(zap.NewNop(), r)

	s.start("wide", "first topic", 30)
	s.start("wide", "second topic", 30)

	if got := s.list(); got != `WIDE: "second topic"` {
		t.Fatalf("expected the second start to replace the first, got %q", got)
	}
	s.stopAll()
	if got := s.list(); got != "no active topics" {
		t.Fatalf("expected stopAll to clear every task, got %q", got)
	}
}

func TestBeaconSchedulerFloorsShortIntervals(t *testing.T) {
	r := router.New(zap.NewNop(), "DK5EN-1")
	s := newBeaconScheduler(zap.NewNop(), r)

	s.start("wide", "topic", 0)
	s.mu.Lock()
	task := s.tasks["WIDE"]
	s.mu.Unlock()
	if task.interval != minBeaconIntervalSeconds*time.Second {
		t.Fatalf("expected interval floored to %ds, got %v", minBeaconIntervalSeconds, task.interval)
	}
	s.stopAll()
}
