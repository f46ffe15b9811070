// Package config loads the monitor and robot settings.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then environment variables. Command line flags are applied on top by the
// commands themselves.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = 8000
	DefaultMonitorURL = "http://fleet-monitor:8000"
	DefaultInterval   = 5 * time.Second
	DefaultTimeout    = 2 * time.Second
)

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Monitor  MonitorConfig `yaml:"monitor"`
	Robot    RobotConfig   `yaml:"robot"`
}

type MonitorConfig struct {
	ListenAddress  string   `yaml:"listen_address"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// SnapshotPath, when set, receives the last fleet snapshot at shutdown.
	SnapshotPath string `yaml:"snapshot_path"`
}

type RobotConfig struct {
	ID         string        `yaml:"id"`
	MonitorURL string        `yaml:"monitor_url"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Monitor: MonitorConfig{
			ListenAddress:  "0.0.0.0",
			Port:           DefaultPort,
			AllowedOrigins: []string{"*"},
		},
		Robot: RobotConfig{
			ID:         "unknown",
			MonitorURL: DefaultMonitorURL,
			Interval:   DefaultInterval,
			Timeout:    DefaultTimeout,
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("cannot read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("cannot unmarshal config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("LISTEN_ADDRESS"); ok && v != "" {
		c.Monitor.ListenAddress = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Monitor.Port = port
	}
	if v, ok := lookup("SNAPSHOT_PATH"); ok {
		c.Monitor.SnapshotPath = v
	}
	if v, ok := lookup("ROBOT_ID"); ok && v != "" {
		c.Robot.ID = v
	}
	if v, ok := lookup("MONITOR_URL"); ok && v != "" {
		c.Robot.MonitorURL = v
	}
	if v, ok := lookup("REPORT_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REPORT_INTERVAL %q: %w", v, err)
		}
		c.Robot.Interval = d
	}
	return nil
}

// MonitorOverrides are command line values. Nil fields were not set and leave
// the loaded value alone.
type MonitorOverrides struct {
	ListenAddress *string
	Port          *int
	SnapshotPath  *string
}

// Apply layers o over m. It is the last step of resolution, after Load.
func (m *MonitorConfig) Apply(o MonitorOverrides) {
	if o.ListenAddress != nil {
		m.ListenAddress = *o.ListenAddress
	}
	if o.Port != nil {
		m.Port = *o.Port
	}
	if o.SnapshotPath != nil {
		m.SnapshotPath = *o.SnapshotPath
	}
}

type RobotOverrides struct {
	ID         *string
	MonitorURL *string
	Interval   *time.Duration
}

func (r *RobotConfig) Apply(o RobotOverrides) {
	if o.ID != nil {
		r.ID = *o.ID
	}
	if o.MonitorURL != nil {
		r.MonitorURL = *o.MonitorURL
	}
	if o.Interval != nil {
		r.Interval = *o.Interval
	}
}

// Validate accepts port 0, which binds an ephemeral port.
func (m MonitorConfig) Validate() error {
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("monitor port %d out of range", m.Port)
	}
	return nil
}

func (r RobotConfig) Validate() error {
	var errs []error
	if r.Interval <= 0 {
		errs = append(errs, fmt.Errorf("robot interval must be positive, got %s", r.Interval))
	}
	if r.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("robot timeout must be positive, got %s", r.Timeout))
	}
	if u, err := url.Parse(r.MonitorURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid monitor url %q", r.MonitorURL))
	}
	return errors.Join(errs...)
}
