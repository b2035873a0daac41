package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Node: NodeConfig{
			Callsign: "DK5EN-10",
			UDPHost:  "127.0.0.1:1799",
		},
		BLE: BLEConfig{
			Mode: "disabled",
		},
		Store: StoreConfig{
			Path: "/var/lib/mcapp/messages.db",
		},
		Command: CommandConfig{
			DefaultThrottleSeconds: 300,
		},
		Retention: RetentionConfig{
			IntervalHours: 24,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoCallsign(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Callsign = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty callsign")
	}
}

func TestValidate_NoStorePath(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty store path")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_InvalidBLEMode(t *testing.T) {
	cfg := validConfig()
	cfg.BLE.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid ble.mode")
	}
}

func TestValidate_RemoteBLERequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.BLE.Mode = "remote"
	cfg.BLE.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for remote ble mode without url")
	}
}

func TestValidate_ThrottleSecondsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Command.DefaultThrottleSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default_throttle_seconds = 0")
	}
}

func TestValidate_RetentionIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.IntervalHours = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention.interval_hours = 0")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
node:
  callsign: "DK5EN-10"
store:
  path: "/tmp/messages.db"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideCallsign(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("MCAPP_NODE__CALLSIGN", "DK5EN-11")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Node.Callsign != "DK5EN-11" {
		t.Errorf("expected callsign from env, got %q", cfg.Node.Callsign)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("MCAPP_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyCallsignFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("MCAPP_NODE__CALLSIGN", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty callsign via env")
	}
}
