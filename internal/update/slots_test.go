package update

import (
	"testing"
	"time"
)

func TestLayoutEnsureCreatesSlotsAndCurrentLink(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	active, err := l.ActiveSlot()
	if err != nil {
		t.Fatalf("ActiveSlot: %v", err)
	}
	if active != 0 {
		t.Errorf("active = %d, want 0", active)
	}

	metas, err := l.AllMeta()
	if err != nil {
		t.Fatalf("AllMeta: %v", err)
	}
	if len(metas) != SlotCount {
		t.Fatalf("len(metas) = %d, want %d", len(metas), SlotCount)
	}
	for _, m := range metas {
		if m.Status != SlotEmpty {
			t.Errorf("slot %d status = %q, want empty", m.SlotID, m.Status)
		}
	}
}

func TestLayoutTargetSlotPrefersEmpty(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	target, err := l.TargetSlot()
	if err != nil {
		t.Fatalf("TargetSlot: %v", err)
	}
	if target != 1 {
		t.Errorf("target = %d, want 1 (first empty non-active slot)", target)
	}
}

func TestLayoutTargetSlotPicksOldestWhenAllFilled(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	now := time.Now().UTC()
	if err := l.WriteMeta(SlotMeta{SlotID: 1, Version: "v1", Status: SlotHealthy, DeployedAt: now.Add(-2 * time.Hour).Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteMeta(SlotMeta{SlotID: 2, Version: "v2", Status: SlotHealthy, DeployedAt: now.Add(-1 * time.Hour).Format(time.RFC3339)}); err != nil {
		t.Fatal(err)
	}

	target, err := l.TargetSlot()
	if err != nil {
		t.Fatalf("TargetSlot: %v", err)
	}
	if target != 1 {
		t.Errorf("target = %d, want 1 (oldest non-active slot)", target)
	}
}

func TestLayoutSwapCurrentIsAtomic(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if err := l.SwapCurrent(2); err != nil {
		t.Fatalf("SwapCurrent: %v", err)
	}
	active, err := l.ActiveSlot()
	if err != nil {
		t.Fatalf("ActiveSlot: %v", err)
	}
	if active != 2 {
		t.Errorf("active = %d, want 2", active)
	}
}
