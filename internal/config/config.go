package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Backend  BackendConfig `yaml:"backend"`
	BLE      BLEConfig     `yaml:"ble"`
	Notify   NotifyConfig  `yaml:"notifications"`
	Push     PushConfig    `yaml:"push"`
	Override bool          `yaml:"override"`
	LogLevel string        `yaml:"log_level"`
}

// BackendConfig holds backend API settings.
type BackendConfig struct {
	URL          string   `yaml:"url"`
	PollInterval Duration `yaml:"poll_interval"`
	Timeout      Duration `yaml:"timeout"`
}

// BLEConfig holds BLE peripheral settings.
type BLEConfig struct {
	DeviceName  string   `yaml:"device_name"` // optional; empty picks the first match
	ScanTimeout Duration `yaml:"scan_timeout"`
}

// NotifyConfig holds local notification settings.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PushConfig holds background push delivery settings.
type PushConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddr   string `yaml:"listen_addr"`
	AdvertiseURL string `yaml:"advertise_url"` // endpoint the backend pushes to
}

// Duration wraps time.Duration so YAML values like "500ms" or "2s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "plugwatch")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:          "http://localhost:5000/api",
			PollInterval: Duration(2 * time.Second),
			Timeout:      Duration(10 * time.Second),
		},
		BLE: BLEConfig{
			ScanTimeout: Duration(10 * time.Second),
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
		Push: PushConfig{
			ListenAddr:   "127.0.0.1:8571",
			AdvertiseURL: "http://127.0.0.1:8571/push",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must not be empty")
	}

	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("backend.poll_interval must be > 0")
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}

	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}

	if c.Push.Enabled {
		if c.Push.ListenAddr == "" {
			return fmt.Errorf("push.listen_addr must not be empty when push is enabled")
		}
		if c.Push.AdvertiseURL == "" {
			return fmt.Errorf("push.advertise_url must not be empty when push is enabled")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}
