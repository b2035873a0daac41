package router

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestPublishDeliversInRegistrationOrderAndIsolatesFailures(t *testing.T) {
	r := New(zap.NewNop(), "DK5EN-1")

	var mu sync.Mutex
	var order []int

	r.Subscribe(TopicMeshMessage, func(string, any) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		panic("boom")
	})
	r.Subscribe(TopicMeshMessage, func(string, any) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	r.Publish("udp", TopicMeshMessage, "hello")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected both subscribers invoked in order despite panic, got %v", order)
	}
}

func TestNormalizeUppercasesDstAlwaysAndSrcUpToComma(t *testing.T) {
	n := NewNormalizer("DK5EN-1", nil)

	src, dst, text := n.Normalize(" dk5en-1,WIDE1-1 ", " oe5hwn-12 ", "hello world")
	if src != "DK5EN-1,WIDE1-1" {
		t.Fatalf("src = %q", src)
	}
	if dst != "OE5HWN-12" {
		t.Fatalf("dst = %q", dst)
	}
	if text != "hello world" {
		t.Fatalf("text should be unchanged for non-command payloads, got %q", text)
	}
}

func TestNormalizeUppercasesCommandText(t *testing.T) {
	n := NewNormalizer("DK5EN-1", nil)
	_, _, text := n.Normalize("DK5EN-1", "DK5EN-1", "!wx")
	if text != "!WX" {
		t.Fatalf("command text should be upper-cased, got %q", text)
	}
}

func TestSuppressionOracleScenarios(t *testing.T) {
	r := New(zap.NewNop(), "DK5EN-1")
	o := r.Normalizer().Oracle()

	// Scenario 1: self-to-self command with no target -> suppress.
	if !o.Decide("DK5EN-1", "DK5EN-1", "!WX") {
		t.Fatal("expected suppression for self-targeted command")
	}

	// Scenario 4: self command to group naming another callsign as target -> not suppressed.
	if o.Decide("DK5EN-1", "20", "!WX OE5HWN-12") {
		t.Fatal("expected no suppression when target is another callsign")
	}

	// Not from me -> never suppress.
	if o.Decide("OE5HWN-12", "20", "!TIME DK5EN-1") {
		t.Fatal("expected no suppression for non-self source")
	}

	// Invalid destination -> suppress regardless of target.
	if !o.Decide("DK5EN-1", "*", "!HELP") {
		t.Fatal("expected suppression for broadcast destination")
	}

	// Explicit local target -> suppress.
	if !o.Decide("DK5EN-1", "20", "!CTCPING TARGET:LOCAL CALL:DK5EN-99") {
		t.Fatal("expected suppression for explicit-local target")
	}
}
