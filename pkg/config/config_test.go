package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otelfleet/fleetmon/pkg/config"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LISTEN_ADDRESS", "PORT", "SNAPSHOT_PATH", "ROBOT_ID", "MONITOR_URL", "REPORT_INTERVAL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 8000, cfg.Monitor.Port)
	assert.Equal(t, "unknown", cfg.Robot.ID)
	assert.Equal(t, "http://fleet-monitor:8000", cfg.Robot.MonitorURL)
	assert.Equal(t, 5*time.Second, cfg.Robot.Interval)
	assert.Equal(t, 2*time.Second, cfg.Robot.Timeout)
	require.NoError(t, cfg.Monitor.Validate())
	require.NoError(t, cfg.Robot.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "fleetmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
monitor:
  port: 9100
  snapshot_path: /tmp/fleet.json
robot:
  id: from-file
  interval: 750ms
`), 0o644))

	t.Setenv("ROBOT_ID", "from-env")
	t.Setenv("PORT", "9200")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9200, cfg.Monitor.Port)
	assert.Equal(t, "/tmp/fleet.json", cfg.Monitor.SnapshotPath)
	assert.Equal(t, "from-env", cfg.Robot.ID)
	assert.Equal(t, 750*time.Millisecond, cfg.Robot.Interval)
	// untouched keys keep their defaults
	assert.Equal(t, config.DefaultMonitorURL, cfg.Robot.MonitorURL)
	assert.Equal(t, []string{"*"}, cfg.Monitor.AllowedOrigins)
}

func TestPrecedence_FlagsOverEnvOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "fleetmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monitor:
  port: 9100
  listen_address: 10.0.0.1
robot:
  id: from-file
  monitor_url: http://file:8000
  interval: 750ms
`), 0o644))
	t.Setenv("PORT", "9200")
	t.Setenv("ROBOT_ID", "from-env")
	t.Setenv("MONITOR_URL", "http://env:8000")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	cfg.Monitor.Apply(config.MonitorOverrides{Port: lo.ToPtr(9300)})
	cfg.Robot.Apply(config.RobotOverrides{
		ID:       lo.ToPtr("from-flag"),
		Interval: lo.ToPtr(3 * time.Second),
	})

	assert.Equal(t, 9300, cfg.Monitor.Port)
	assert.Equal(t, "10.0.0.1", cfg.Monitor.ListenAddress)
	assert.Equal(t, "from-flag", cfg.Robot.ID)
	assert.Equal(t, "http://env:8000", cfg.Robot.MonitorURL)
	assert.Equal(t, 3*time.Second, cfg.Robot.Interval)
	assert.Equal(t, config.DefaultTimeout, cfg.Robot.Timeout)
}

func TestApply_EmptyOverridesKeepValues(t *testing.T) {
	cfg := config.Default()
	want := cfg

	cfg.Monitor.Apply(config.MonitorOverrides{})
	cfg.Robot.Apply(config.RobotOverrides{})
	assert.Equal(t, want, cfg)

	cfg.Monitor.Apply(config.MonitorOverrides{SnapshotPath: lo.ToPtr("")})
	assert.Empty(t, cfg.Monitor.SnapshotPath)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := config.Load("")
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("REPORT_INTERVAL", "often")
	_, err = config.Load("")
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	m := config.Default().Monitor
	m.Port = 0
	assert.NoError(t, m.Validate())
	m.Port = 70000
	assert.Error(t, m.Validate())

	r := config.Default().Robot
	r.Interval = 0
	r.Timeout = -time.Second
	r.MonitorURL = "fleet-monitor"
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "monitor url")
}
