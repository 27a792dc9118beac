// Package telebench is the benchmark-authoring API for device programs.
// A program registers ordered groups of benchmark closures and hands control
// to Main, which runs the measurement engine against the device clock and
// writes the protocol stream to stdout for a relay to consume:
//
//	g := telebench.NewGroup("sorting")
//	g.Bench("std_sort", func(b *telebench.B) {
//		b.Iter(func() { sort.Ints(data) })
//	})
//	telebench.Main()
package telebench

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/config"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
)

// Aliases so benchmark programs never import internal packages directly.
type (
	// B is handed to every benchmark body; call Iter exactly once.
	B = bench.B
	// Func is a benchmark body.
	Func = bench.Func
	// Config carries the measurement parameters.
	Config = protocol.Config
	// ThroughputKind tags what a throughput amount counts.
	ThroughputKind = protocol.ThroughputKind
	// ClockSource is the device tick counter abstraction. Ports to real
	// hardware provide their own and pass it via WithSource.
	ClockSource = clock.Source
)

const (
	Bytes    = protocol.ThroughputBytes
	Elements = protocol.ThroughputElements
)

// std is the registry Main runs. One per process, like the flag package.
var std = bench.NewRegistry()

// DefaultConfig returns the standard measurement parameters.
func DefaultConfig() Config {
	return protocol.DefaultConfig()
}

// SetConfig replaces the measurement parameters for the whole run. A relay
// overrides these through TELEBENCH_* variables when it spawns the program.
func SetConfig(cfg Config) {
	std.SetConfig(cfg)
}

// Keep returns v unchanged while preventing the compiler from discarding
// the computation that produced it.
func Keep[T any](v T) T {
	return bench.Keep(v)
}

// Group collects ordered benchmark cases reporting under one name.
type Group struct {
	inner *bench.Group
}

// NewGroup opens (or reopens) a named group on the program's registry.
// Registration order is execution order.
func NewGroup(name string) *Group {
	return &Group{inner: std.Group(name)}
}

// Throughput attaches a per-invocation quantity to every case registered
// after this call, so reporters can derive rates.
func (g *Group) Throughput(kind ThroughputKind, amount uint64) *Group {
	g.inner.Throughput(kind, amount)
	return g
}

// Bench registers a benchmark function.
func (g *Group) Bench(function string, fn Func) *Group {
	g.inner.Bench(function, fn)
	return g
}

// BenchValue registers a parameterized benchmark; value is the rendered
// parameter, e.g. an input size.
func (g *Group) BenchValue(function, value string, fn Func) *Group {
	g.inner.BenchValue(function, value, fn)
	return g
}

// Skip registers a benchmark that declines to run, with the reason the
// reporters will show.
func (g *Group) Skip(function, reason string) *Group {
	g.inner.Skip(function, reason)
	return g
}

// Option adjusts Main for tests and non-hosted targets.
type Option func(*options)

type options struct {
	out     io.Writer
	src     ClockSource
	version string
	halt    func()
}

// WithOutput redirects the protocol stream away from stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithSource measures against a specific tick counter instead of the host
// monotonic clock.
func WithSource(src ClockSource) Option {
	return func(o *options) { o.src = src }
}

// WithVersion sets the runner version reported in the hello frame.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithHalt installs the after-done hook for targets that have nothing to
// return to; it is called instead of returning once the stream is complete.
func WithHalt(f func()) Option {
	return func(o *options) { o.halt = f }
}

// Main parses the device flags, applies the environment overlay, runs every
// registered benchmark, and exits. It does not return.
func Main(opts ...Option) {
	check := flag.Bool("check", false, "run every benchmark once without measuring")
	filter := flag.String("filter", "", "only measure benchmarks whose id contains this substring")
	flag.Parse()
	os.Exit(run(std, *check, *filter, opts...))
}

func run(reg *bench.Registry, check bool, filter string, opts ...Option) int {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.New(log.ParseLevel(os.Getenv("TELEBENCH_LOG_LEVEL")))
	defer logger.Sync()

	cfg, err := config.RunFromEnv(reg.Config())
	if err != nil {
		fmt.Fprintln(os.Stderr, "telebench:", err)
		return exitCode(err)
	}
	reg.SetConfig(cfg)

	if o.src == nil {
		o.src = clock.NewHostSource()
	}
	clk, err := clock.New(o.src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "telebench:", err)
		return exitCode(err)
	}

	rcfg := bench.DefaultRunnerConfig()
	if o.version != "" {
		rcfg.Version = o.version
	}
	rcfg.Halt = o.halt
	if check {
		rcfg.Mode = bench.ModeCheck
	}
	if filter != "" {
		rcfg.Filter = func(id protocol.Identifier) bool {
			return strings.Contains(id.String(), filter)
		}
	}

	if err := bench.NewRunner(reg, clk, o.out, rcfg, logger).Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "telebench:", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	if code := protocol.GetErrorCode(err); code >= 5000 && code < 6000 {
		return 2
	}
	return 1
}
