package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("short read")
	e := Decode("parsing header", cause)
	want := "decode_error: parsing header: short read"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestErrorMessageOmitsCauseWhenNil(t *testing.T) {
	e := Throttled("command repeated too soon")
	want := "throttled: command repeated too soon"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	e := MigrationFailure("applying schema", cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	e := FCSMismatch("bad checksum")
	wrapped := fmt.Errorf("decoding frame: %w", e)

	if !Is(wrapped, KindFCSMismatch) {
		t.Error("expected Is to find KindFCSMismatch through fmt.Errorf wrapping")
	}
	if Is(wrapped, KindThrottled) {
		t.Error("expected Is to report false for a non-matching kind")
	}
}

func TestIsReturnsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindFatal) {
		t.Error("expected Is to return false for an error with no *errs.Error in its chain")
	}
}

func TestKindStringCoversAllConstants(t *testing.T) {
	kinds := []Kind{
		KindDecode, KindFCSMismatch, KindTransportUnavailable, KindValidation,
		KindCommandFormat, KindThrottled, KindBLEBusy, KindMigrationFailure,
		KindStorageFull, KindFatal,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		if s == "unknown" || s == "" {
			t.Errorf("Kind %d stringified to %q", k, s)
		}
		if seen[s] {
			t.Errorf("Kind %d reused string %q", k, s)
		}
		seen[s] = true
	}
}

func TestKindStringUnknownValue(t *testing.T) {
	if got := Kind(999).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
