package update

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotAndRestoreEtcRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "config.yaml"), []byte("node:\n  callsign: DK5EN-1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "etc.tar.gz")
	if err := SnapshotEtc(src, snapshotPath); err != nil {
		t.Fatalf("SnapshotEtc: %v", err)
	}

	dest := t.TempDir()
	if err := RestoreEtc(snapshotPath, dest); err != nil {
		t.Fatalf("RestoreEtc: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "config.yaml"))
	if err != nil {
		t.Fatalf("reading restored config.yaml: %v", err)
	}
	if string(got) != "node:\n  callsign: DK5EN-1\n" {
		t.Errorf("config.yaml content = %q", got)
	}

	gotNested, err := os.ReadFile(filepath.Join(dest, "sub", "nested.txt"))
	if err != nil {
		t.Fatalf("reading restored sub/nested.txt: %v", err)
	}
	if string(gotNested) != "hello" {
		t.Errorf("nested.txt content = %q", gotNested)
	}
}
