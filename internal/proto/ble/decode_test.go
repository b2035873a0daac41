package ble

import "testing"

func TestIsRegisterDumpAndBinaryFrame(t *testing.T) {
	if !IsRegisterDump([]byte(`D{"TYP":"G"}`)) {
		t.Fatal("expected register dump detection")
	}
	if !IsBinaryFrame([]byte("@:...")) {
		t.Fatal("expected binary frame detection")
	}
	if IsRegisterDump([]byte("@:...")) {
		t.Fatal("binary frame should not be mistaken for register dump")
	}
}

func TestTransformGPSIgnoresZeroCoordinates(t *testing.T) {
	d := &RegisterDump{Type: TypeG, Raw: map[string]any{"LAT": 0.0, "LON": 0.0}}
	if _, ok := TransformGPS(d); ok {
		t.Fatal("expected zero lat/lon to be rejected")
	}

	d2 := &RegisterDump{Type: TypeG, Raw: map[string]any{"LAT": 48.2, "LON": 16.37}}
	pos, ok := TransformGPS(d2)
	if !ok || pos.Lat != 48.2 || pos.Lon != 16.37 {
		t.Fatalf("unexpected result: %+v ok=%v", pos, ok)
	}
}

func TestParseAprsPosition(t *testing.T) {
	pos, ok := ParseAprsPosition("!4812.34N/01622.10E>/A=001200")
	if !ok {
		t.Fatal("expected position to parse")
	}
	if pos.Symbol != ">" {
		t.Fatalf("symbol = %q", pos.Symbol)
	}
	if !pos.HasAlt || pos.AltFeet != 1200 {
		t.Fatalf("altitude = %v HasAlt=%v", pos.AltFeet, pos.HasAlt)
	}
}

func TestParseTelemetry(t *testing.T) {
	tm, ok := ParseTelemetry("T#123,12.5,0,0,0,0,00000000")
	if !ok {
		t.Fatal("expected telemetry to parse")
	}
	if tm.Seq != 123 || tm.V1 != 12.5 {
		t.Fatalf("unexpected telemetry: %+v", tm)
	}
	if tm.AllZero() {
		t.Fatal("should not be all-zero")
	}
}

func TestSplitPathStripsOwnCallsign(t *testing.T) {
	got := SplitPath("DK5EN-1,WIDE1-1", "dk5en-1")
	if got != "WIDE1-1" {
		t.Fatalf("got %q", got)
	}
}
