package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use the familiar
// "5s" / "500ms" syntax, which yaml.v3 does not parse into
// time.Duration on its own.
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "5s" or "500ms".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure for the Trisonica logger.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Storage    StorageConfig    `yaml:"storage"`
	Statistics StatisticsConfig `yaml:"statistics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig contains serial device settings.
type DeviceConfig struct {
	// Port is the serial device path, or "auto" for discovery.
	Port string `yaml:"port"`

	// BaudRate for probing and the persistent session.
	BaudRate int `yaml:"baud_rate"`

	// WaitForDevice keeps searching when no device is present and
	// re-searches after a disconnect instead of exiting.
	WaitForDevice bool `yaml:"wait_for_device"`

	// PollInterval is the wait between device discovery sweeps.
	PollInterval Duration `yaml:"poll_interval"`

	// ReadTimeout bounds each line read on the open session.
	ReadTimeout Duration `yaml:"read_timeout"`

	// ProbeLines is how many lines to inspect per candidate port
	// before rejecting it.
	ProbeLines int `yaml:"probe_lines"`

	// StrictTemperature additionally classifies negative temperature
	// readings as errors, for deployments where sub-zero values can
	// only mean a wiring or transducer fault.
	StrictTemperature bool `yaml:"strict_temperature"`
}

// StorageConfig contains output location settings.
type StorageConfig struct {
	// DataDir is where CSV output is written, typically a removable
	// storage mountpoint provisioned outside this process.
	DataDir string `yaml:"data_dir"`

	// FallbackDir is used when DataDir is missing or not writable.
	// Empty means ~/trisonica_data.
	FallbackDir string `yaml:"fallback_dir"`

	// SessionIndex configures the SQLite index of logging sessions.
	SessionIndex SessionIndexConfig `yaml:"session_index"`
}

// SessionIndexConfig contains SQLite session index settings.
type SessionIndexConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path to the database file. Empty means <data_dir>/sessions.db.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock
	// (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// StatisticsConfig contains statistics accumulation settings.
type StatisticsConfig struct {
	// Enabled controls whether the statistics CSV is written at all.
	Enabled bool `yaml:"enabled"`

	// WindowSize is the recent-values window for mean/std-dev.
	WindowSize int `yaml:"window_size"`

	// SnapshotEvery is how many accepted records pass between
	// statistics snapshots.
	SnapshotEvery int `yaml:"snapshot_every"`

	// HistorySize is the capacity of the in-memory recent-record ring.
	HistorySize int `yaml:"history_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TRISONICA_SECTION_KEY
// For example: TRISONICA_DEVICE_PORT, TRISONICA_STORAGE_DATA_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. Used directly when
// no config file is supplied.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:          "auto",
			BaudRate:      115200,
			WaitForDevice: true,
			PollInterval:  Duration(5 * time.Second),
			ReadTimeout:   Duration(1 * time.Second),
			ProbeLines:    10,
		},
		Storage: StorageConfig{
			DataDir: "/mnt/data_sd",
			SessionIndex: SessionIndexConfig{
				Enabled:     true,
				WALMode:     true,
				BusyTimeout: 5,
			},
		},
		Statistics: StatisticsConfig{
			Enabled:       true,
			WindowSize:    100,
			SnapshotEvery: 100,
			HistorySize:   10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Variables follow the pattern: TRISONICA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("TRISONICA_DEVICE_PORT"); v != "" {
		cfg.Device.Port = v
	}
	if v := os.Getenv("TRISONICA_DEVICE_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Device.BaudRate = baud
		}
	}

	// Storage
	if v := os.Getenv("TRISONICA_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	// Logging
	if v := os.Getenv("TRISONICA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Port == "" {
		errs = append(errs, `device.port is required (use "auto" for discovery)`)
	}
	if c.Device.BaudRate <= 0 {
		errs = append(errs, "device.baud_rate must be positive")
	}
	if c.Device.PollInterval <= 0 {
		errs = append(errs, "device.poll_interval must be positive")
	}
	if c.Device.ReadTimeout <= 0 {
		errs = append(errs, "device.read_timeout must be positive")
	}
	if c.Device.ProbeLines <= 0 {
		errs = append(errs, "device.probe_lines must be positive")
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir is required")
	}

	if c.Statistics.WindowSize <= 0 {
		errs = append(errs, "statistics.window_size must be positive")
	}
	if c.Statistics.SnapshotEvery <= 0 {
		errs = append(errs, "statistics.snapshot_every must be positive")
	}
	if c.Statistics.HistorySize <= 0 {
		errs = append(errs, "statistics.history_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SessionIndexPath returns the resolved session index database path:
// the configured value, or sessions.db inside dataDir when unset.
func (c *Config) SessionIndexPath(dataDir string) string {
	if c.Storage.SessionIndex.Path != "" {
		return c.Storage.SessionIndex.Path
	}
	return filepath.Join(dataDir, "sessions.db")
}
