package command

import (
	"reflect"
	"testing"
)

func TestParseSeparatesKeyValueFromPositional(t *testing.T) {
	args, positional, err := Parse("CTCPING", []string{"call:OE5HWN-12", "target:WIDE1-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"CALL": "OE5HWN-12", "TARGET": "WIDE1-1"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
	if len(positional) != 0 {
		t.Errorf("positional = %v, want empty", positional)
	}
}

func TestParseCtcpingRequiresCall(t *testing.T) {
	if _, _, err := Parse("CTCPING", []string{"target:WIDE1-1"}); err == nil {
		t.Fatal("expected an error when ctcping has no call: argument")
	}
}

func TestParseDiceAllowsBareSides(t *testing.T) {
	_, positional, err := Parse("DICE", []string{"20"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positional) != 1 || positional[0] != "20" {
		t.Errorf("positional = %v, want [20]", positional)
	}
}

func TestParseGroupRequiresSomeArgument(t *testing.T) {
	if _, _, err := Parse("GROUP", nil); err == nil {
		t.Fatal("expected an error when group has no arguments at all")
	}
	if _, _, err := Parse("GROUP", []string{"on"}); err != nil {
		t.Fatalf("unexpected error for group with a positional argument: %v", err)
	}
}
