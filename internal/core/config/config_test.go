package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/protocol"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateTrigger())

	assert.Equal(t, protocol.DefaultConfig(), cfg.Run.Protocol())
	assert.Equal(t, 20*time.Second, cfg.Relay.WatchdogTimeout.Std())
	assert.Equal(t, "telebench-out", cfg.Report.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadParsesFileAndAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telebench.yaml")
	doc := `
run:
  measurement_time: 250ms
  warm_up_time: 100ms
  sample_size: 40
  nresamples: 5000
build:
  command: ["make", "firmware", "ARTIFACT={artifact}"]
  target: thumbv7em
flash:
  remote: "ws://bridge.lan:9333/bench"
relay:
  watchdog_timeout: 45s
report:
  dir: out
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("TELEBENCH_SAMPLE_SIZE", "25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Run.MeasurementTime.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Run.WarmUpTime.Std())
	// Env wins over the file.
	assert.Equal(t, 25, cfg.Run.SampleSize)
	assert.Equal(t, 5000, cfg.Run.Nresamples)
	assert.Equal(t, []string{"make", "firmware", "ARTIFACT={artifact}"}, cfg.Build.Command)
	assert.Equal(t, "thumbv7em", cfg.Build.Target)
	assert.Equal(t, "ws://bridge.lan:9333/bench", cfg.Flash.Remote)
	// Sections the file omits keep their defaults.
	assert.Equal(t, []string{"./probe-run", "{artifact}"}, cfg.Flash.Command)
	assert.Equal(t, 45*time.Second, cfg.Relay.WatchdogTimeout.Std())
	assert.Equal(t, "out", cfg.Report.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithoutAnyFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unclosed"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
}

func TestApplyEnvOverlay(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"TELEBENCH_MEASUREMENT_TIME": "2s",
		"TELEBENCH_WARM_UP_TIME":     "500ms",
		"TELEBENCH_SAMPLE_SIZE":      "10",
		"TELEBENCH_NRESAMPLES":       "100",
		"TELEBENCH_TARGET":           "riscv32",
		"TELEBENCH_REMOTE":           "quic://10.0.0.2:4444",
		"TELEBENCH_WATCHDOG_TIMEOUT": "1m",
		"TELEBENCH_REPORT_DIR":       "results",
		"TELEBENCH_LOG_LEVEL":        "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Run.MeasurementTime.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Run.WarmUpTime.Std())
	assert.Equal(t, 10, cfg.Run.SampleSize)
	assert.Equal(t, 100, cfg.Run.Nresamples)
	assert.Equal(t, "riscv32", cfg.Build.Target)
	assert.Equal(t, "quic://10.0.0.2:4444", cfg.Flash.Remote)
	assert.Equal(t, time.Minute, cfg.Relay.WatchdogTimeout.Std())
	assert.Equal(t, "results", cfg.Report.Dir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(mapLookup(map[string]string{"TELEBENCH_MEASUREMENT_TIME": "fast"}))
	assert.ErrorIs(t, err, protocol.ErrInvalidConfig)

	cfg = DefaultConfig()
	err = cfg.applyEnv(mapLookup(map[string]string{"TELEBENCH_SAMPLE_SIZE": "many"}))
	assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
}

func TestDurationYAML(t *testing.T) {
	var doc struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1500ms\nb: 2000000000\n"), &doc))
	assert.Equal(t, 1500*time.Millisecond, doc.A.Std())
	assert.Equal(t, 2*time.Second, doc.B.Std())

	require.Error(t, yaml.Unmarshal([]byte("a: fast\n"), &doc))

	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*Config)
		sentinel error
	}{
		{
			name:     "zero sample size",
			mutate:   func(c *Config) { c.Run.SampleSize = 0 },
			sentinel: protocol.ErrInvalidConfig,
		},
		{
			name:     "sample size beyond capacity",
			mutate:   func(c *Config) { c.Run.SampleSize = bench.MaxSampleCapacity + 1 },
			sentinel: protocol.ErrSampleBufferExceeded,
		},
		{
			name:     "zero measurement time",
			mutate:   func(c *Config) { c.Run.MeasurementTime = 0 },
			sentinel: protocol.ErrInvalidConfig,
		},
		{
			name:     "zero watchdog",
			mutate:   func(c *Config) { c.Relay.WatchdogTimeout = 0 },
			sentinel: protocol.ErrInvalidConfig,
		},
		{
			name:     "remote without scheme",
			mutate:   func(c *Config) { c.Flash.Remote = "bridge.lan:9333" },
			sentinel: protocol.ErrInvalidConfig,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.sentinel)
		})
	}
}

func TestValidateTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Build.Command = nil
	assert.ErrorIs(t, cfg.ValidateTrigger(), protocol.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Flash.Command = nil
	cfg.Flash.Remote = ""
	assert.ErrorIs(t, cfg.ValidateTrigger(), protocol.ErrInvalidConfig)

	// A remote on its own satisfies the flash requirement.
	cfg = DefaultConfig()
	cfg.Flash.Command = nil
	cfg.Flash.Remote = "tcp://device.lan:7000"
	assert.NoError(t, cfg.ValidateTrigger())
}

func TestRunEnvFeedsRunFromEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.MeasurementTime = Duration(1500 * time.Millisecond)
	cfg.Run.SampleSize = 32

	for _, kv := range cfg.RunEnv() {
		name, value, ok := strings.Cut(kv, "=")
		require.True(t, ok, "assignment %q", kv)
		t.Setenv(name, value)
	}

	got, err := RunFromEnv(protocol.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, cfg.Run.Protocol(), got)
}

func TestRunFromEnvRejectsBadValue(t *testing.T) {
	t.Setenv("TELEBENCH_SAMPLE_SIZE", "many")
	_, err := RunFromEnv(protocol.DefaultConfig())
	require.ErrorIs(t, err, protocol.ErrInvalidConfig)
}
