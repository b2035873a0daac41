package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Node      NodeConfig      `koanf:"node"`
	BLE       BLEConfig       `koanf:"ble"`
	Store     StoreConfig     `koanf:"store"`
	Command   CommandConfig   `koanf:"command"`
	Update    UpdateConfig    `koanf:"update"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
	APIKey                 string `koanf:"api_key"`
}

// NodeConfig describes the mesh node this gateway speaks for.
type NodeConfig struct {
	Callsign  string   `koanf:"callsign"`
	UDPHost   string   `koanf:"udp_host"`
	GroupMode bool     `koanf:"group_mode"`
	Admins    []string `koanf:"admins"`
}

// BLEConfig selects between a disabled BLE adapter and a remote
// HTTP+SSE-backed BLE service (MCAPP_BLE_MODE, MCAPP_BLE_URL, MCAPP_BLE_API_KEY).
type BLEConfig struct {
	Mode         string `koanf:"mode"` // "remote" | "disabled"
	URL          string `koanf:"url"`
	APIKey       string `koanf:"api_key"`
	DeviceAddr   string `koanf:"device_address"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type CommandConfig struct {
	DefaultThrottleSeconds int `koanf:"default_throttle_seconds"`
}

type UpdateConfig struct {
	SlotsHome     string `koanf:"slots_home"`
	EtcDir        string `koanf:"etc_dir"`
	BootstrapPath string `koanf:"bootstrap_path"`
	RunnerPort    int    `koanf:"runner_port"`
}

type RetentionConfig struct {
	IntervalHours int `koanf:"interval_hours"`
}

// Load reads the YAML file at path (if non-empty), overlays MCAPP_*
// environment variables, and applies the gateway's defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: MCAPP_NODE__CALLSIGN -> node.callsign
	if err := k.Load(env.Provider("MCAPP_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MCAPP_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		switch s {
		case "ble_mode", "ble_url", "ble_api_key":
			s = "ble." + strings.TrimPrefix(s, "ble_")
		}
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "mcapp-gateway-1",
			HTTPListen:             ":8088",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Node: NodeConfig{
			UDPHost:   "127.0.0.1:1799",
			GroupMode: false,
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
		Update: UpdateConfig{
			SlotsHome:  "$HOME/mcapp-slots",
			RunnerPort: 2985,
		},
		Retention: RetentionConfig{
			IntervalHours: 24,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Node.Admins) == 1 && strings.Contains(cfg.Node.Admins[0], ",") {
		cfg.Node.Admins = strings.Split(cfg.Node.Admins[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Node.Callsign == "" {
		return fmt.Errorf("config: node.callsign is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	switch c.BLE.Mode {
	case "remote", "disabled":
	default:
		return fmt.Errorf("config: ble.mode must be 'remote' or 'disabled' (got %q)", c.BLE.Mode)
	}
	if c.BLE.Mode == "remote" && c.BLE.URL == "" {
		return fmt.Errorf("config: ble.url is required when ble.mode is 'remote'")
	}
	if c.Command.DefaultThrottleSeconds <= 0 {
		return fmt.Errorf("config: command.default_throttle_seconds must be > 0 (got %d)", c.Command.DefaultThrottleSeconds)
	}
	if c.Retention.IntervalHours <= 0 {
		return fmt.Errorf("config: retention.interval_hours must be > 0 (got %d)", c.Retention.IntervalHours)
	}
	return nil
}

// ShutdownTimeout is a convenience accessor converting the configured
// seconds value into a time.Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Service.ShutdownTimeoutSeconds) * time.Second
}
