// Package config resolves the telebench configuration. Resolution order is
// fixed: built-in defaults, then the YAML file, then TELEBENCH_* environment
// overrides, then validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/protocol"
)

// DefaultPath is the config file looked up when no -c flag is given.
const DefaultPath = "telebench.yaml"

// Duration wraps time.Duration so YAML can carry values like "5s". Bare
// integers are read as nanoseconds, matching the wire encoding.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("duration must be a string like \"5s\" or integer nanoseconds, got %q", node.Value)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full telebench configuration tree.
type Config struct {
	Run    RunConfig    `json:"run" yaml:"run"`
	Build  BuildConfig  `json:"build" yaml:"build"`
	Flash  FlashConfig  `json:"flash" yaml:"flash"`
	Relay  RelayConfig  `json:"relay" yaml:"relay"`
	Report ReportConfig `json:"report" yaml:"report"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// RunConfig carries the measurement parameters forwarded to the device.
type RunConfig struct {
	MeasurementTime Duration `json:"measurement_time" yaml:"measurement_time"`
	WarmUpTime      Duration `json:"warm_up_time" yaml:"warm_up_time"`
	SampleSize      int      `json:"sample_size" yaml:"sample_size"`
	Nresamples      int      `json:"nresamples" yaml:"nresamples"`
}

// Protocol converts the run section into the wire-level config.
func (rc RunConfig) Protocol() protocol.Config {
	return protocol.Config{
		MeasurementTime: rc.MeasurementTime.Std(),
		WarmUpTime:      rc.WarmUpTime.Std(),
		SampleSize:      rc.SampleSize,
		Nresamples:      rc.Nresamples,
	}
}

// BuildConfig describes how the device binary is produced. "{artifact}"
// inside the command expands to the output path chosen by the relay.
type BuildConfig struct {
	Command []string `json:"command" yaml:"command"`
	Target  string   `json:"target,omitempty" yaml:"target,omitempty"`
}

// FlashConfig describes how the built artifact reaches the device. Either a
// local command ("{artifact}" expands like in build) or a remote bridge
// endpoint such as "ws://host:port/bench". Token, when set, is presented to
// the bridge before the measurement stream starts.
type FlashConfig struct {
	Command []string `json:"command" yaml:"command"`
	Remote  string   `json:"remote,omitempty" yaml:"remote,omitempty"`
	Token   string   `json:"token,omitempty" yaml:"token,omitempty"`
}

// RelayConfig tunes the host-side relay.
type RelayConfig struct {
	// WatchdogTimeout is the longest silence tolerated from the device
	// while a run is in flight.
	WatchdogTimeout Duration `json:"watchdog_timeout" yaml:"watchdog_timeout"`
}

// ReportConfig controls result output. An empty Dir disables the JSON store.
type ReportConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the configuration used when no file and no overrides
// are present.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			MeasurementTime: Duration(5 * time.Second),
			WarmUpTime:      Duration(3 * time.Second),
			SampleSize:      50,
			Nresamples:      100_000,
		},
		Build: BuildConfig{
			Command: []string{"go", "build", "-o", "{artifact}", "./bench"},
		},
		Flash: FlashConfig{
			Command: []string{"./probe-run", "{artifact}"},
		},
		Relay: RelayConfig{
			WatchdogTimeout: Duration(20 * time.Second),
		},
		Report: ReportConfig{
			Dir: "telebench-out",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration. With an empty path the default file is
// optional; a path given explicitly must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
				fmt.Sprintf("parse %s", path), err)
		}
	case os.IsNotExist(err) && !explicit:
		// No file; defaults stand.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays TELEBENCH_* variables onto the loaded values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	durations := []struct {
		name string
		dst  *Duration
	}{
		{"TELEBENCH_MEASUREMENT_TIME", &c.Run.MeasurementTime},
		{"TELEBENCH_WARM_UP_TIME", &c.Run.WarmUpTime},
		{"TELEBENCH_WATCHDOG_TIMEOUT", &c.Relay.WatchdogTimeout},
	}
	for _, v := range durations {
		raw, ok := lookup(v.name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
				fmt.Sprintf("%s: parse duration %q", v.name, raw), err)
		}
		*v.dst = Duration(d)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"TELEBENCH_SAMPLE_SIZE", &c.Run.SampleSize},
		{"TELEBENCH_NRESAMPLES", &c.Run.Nresamples},
	}
	for _, v := range ints {
		raw, ok := lookup(v.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
				fmt.Sprintf("%s: parse integer %q", v.name, raw), err)
		}
		*v.dst = n
	}

	strings := []struct {
		name string
		dst  *string
	}{
		{"TELEBENCH_TARGET", &c.Build.Target},
		{"TELEBENCH_REMOTE", &c.Flash.Remote},
		{"TELEBENCH_TOKEN", &c.Flash.Token},
		{"TELEBENCH_REPORT_DIR", &c.Report.Dir},
		{"TELEBENCH_LOG_LEVEL", &c.Log.Level},
	}
	for _, v := range strings {
		if raw, ok := lookup(v.name); ok {
			*v.dst = raw
		}
	}
	return nil
}

// RunEnv renders the run section as environment assignments. A relay puts
// these into a spawned runner's environment so device and host agree on the
// measurement parameters.
func (c *Config) RunEnv() []string {
	return []string{
		"TELEBENCH_MEASUREMENT_TIME=" + c.Run.MeasurementTime.String(),
		"TELEBENCH_WARM_UP_TIME=" + c.Run.WarmUpTime.String(),
		"TELEBENCH_SAMPLE_SIZE=" + strconv.Itoa(c.Run.SampleSize),
		"TELEBENCH_NRESAMPLES=" + strconv.Itoa(c.Run.Nresamples),
	}
}

// RunFromEnv overlays the TELEBENCH_* run variables onto base. Runners call
// this so a relay-spawned process measures with the relay's parameters while
// a directly-invoked binary keeps its registered defaults.
func RunFromEnv(base protocol.Config) (protocol.Config, error) {
	c := &Config{Run: RunConfig{
		MeasurementTime: Duration(base.MeasurementTime),
		WarmUpTime:      Duration(base.WarmUpTime),
		SampleSize:      base.SampleSize,
		Nresamples:      base.Nresamples,
	}}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return base, err
	}
	return c.Run.Protocol(), nil
}

// Validate checks the sections every role depends on. Role-specific
// requirements (build and flash commands) live in ValidateTrigger.
func (c *Config) Validate() error {
	if err := bench.ValidateConfig(c.Run.Protocol()); err != nil {
		return err
	}
	if c.Relay.WatchdogTimeout <= 0 {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("relay.watchdog_timeout must be positive, got %s", c.Relay.WatchdogTimeout), nil)
	}
	if c.Flash.Remote != "" {
		u, err := url.Parse(c.Flash.Remote)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
				fmt.Sprintf("flash.remote %q is not a scheme://host endpoint", c.Flash.Remote), err)
		}
	}
	return nil
}

// ValidateTrigger checks the full pipeline configuration the run role needs:
// something to build with and some way to reach a device.
func (c *Config) ValidateTrigger() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Build.Command) == 0 {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			"build.command is required for run", nil)
	}
	if len(c.Flash.Command) == 0 && c.Flash.Remote == "" {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			"either flash.command or flash.remote is required for run", nil)
	}
	return nil
}
