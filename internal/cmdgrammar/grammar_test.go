package cmdgrammar

import "testing"

func TestIsCommand(t *testing.T) {
	if !IsCommand("  !wx") {
		t.Error("expected leading-bang text to be a command")
	}
	if IsCommand("hello") {
		t.Error("expected plain text not to be a command")
	}
}

func TestCommandName(t *testing.T) {
	name, rest := CommandName("!ctcping call:OE5HWN-12")
	if name != "CTCPING" {
		t.Errorf("name = %q, want CTCPING", name)
	}
	if rest != "call:OE5HWN-12" {
		t.Errorf("rest = %q", rest)
	}
}

func TestIsKeyValue(t *testing.T) {
	k, v, ok := IsKeyValue("target:WIDE1-1")
	if !ok || k != "TARGET" || v != "WIDE1-1" {
		t.Errorf("got %q, %q, %v", k, v, ok)
	}
	if _, _, ok := IsKeyValue("noseparator"); ok {
		t.Error("expected a token without ':' to not be a key:value pair")
	}
	if _, _, ok := IsKeyValue(":leadingcolon"); ok {
		t.Error("expected an empty key to be rejected")
	}
}

func TestExtractTargetExplicitTargetToken(t *testing.T) {
	target, explicit := ExtractTarget("WX", []string{"target:OE5HWN-12"})
	if target != "OE5HWN-12" || !explicit {
		t.Errorf("target=%q explicit=%v", target, explicit)
	}
}

func TestExtractTargetExplicitLocal(t *testing.T) {
	target, explicit := ExtractTarget("WX", []string{"target:local"})
	if target != "" || !explicit {
		t.Errorf("expected explicit-local (empty target, explicit=true), got target=%q explicit=%v", target, explicit)
	}
}

func TestExtractTargetScansRightToLeftForCallsign(t *testing.T) {
	target, explicit := ExtractTarget("WX", []string{"OE5HWN-12", "some", "text"})
	if target != "OE5HWN-12" || explicit {
		t.Errorf("expected the scan to pass non-callsign tail tokens and match the head callsign, got target=%q explicit=%v", target, explicit)
	}

	target, explicit = ExtractTarget("WX", []string{"some", "text", "OE5HWN-12"})
	if target != "OE5HWN-12" || explicit {
		t.Errorf("expected trailing callsign to match implicitly, got target=%q explicit=%v", target, explicit)
	}
}

func TestExtractTargetGroupCommandsNeverHaveTargets(t *testing.T) {
	target, explicit := ExtractTarget("GROUP", []string{"OE5HWN-12"})
	if target != "" || explicit {
		t.Errorf("GROUP must never resolve a target, got target=%q explicit=%v", target, explicit)
	}
}

func TestExtractEchoID(t *testing.T) {
	id, ok := ExtractEchoID("CTC 042{042")
	if !ok || id != 42 {
		t.Errorf("id=%d ok=%v, want 42/true", id, ok)
	}
	if _, ok := ExtractEchoID("no echo tag here"); ok {
		t.Error("expected no match without a trailing '{NNN'")
	}
}

func TestExtractAckID(t *testing.T) {
	id, ok := ExtractAckID("delivered:ack007")
	if !ok || id != 7 {
		t.Errorf("id=%d ok=%v, want 7/true", id, ok)
	}
	if _, ok := ExtractAckID("no ack tag here"); ok {
		t.Error("expected no match without ':ackNNN'")
	}
}
