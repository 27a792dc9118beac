package bench

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
)

// Mode selects how the runner executes registered benchmarks.
type Mode int

const (
	// ModeBenchmark measures every case normally.
	ModeBenchmark Mode = iota
	// ModeCheck executes every case exactly once to verify that it works,
	// without measuring it.
	ModeCheck
)

func (m Mode) String() string {
	switch m {
	case ModeBenchmark:
		return "benchmark"
	case ModeCheck:
		return "check"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a mode name from configuration to its value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "benchmark", "bench", "":
		return ModeBenchmark, nil
	case "check", "test":
		return ModeCheck, nil
	default:
		return ModeBenchmark, fmt.Errorf("unknown run mode %q", s)
	}
}

// RunnerConfig adjusts a device runner. The zero value runs a standard
// measurement pass.
type RunnerConfig struct {
	// Mode selects measurement or check execution.
	Mode Mode
	// Filter, when set, limits the run to identifiers it accepts. Rejected
	// cases still announce themselves and terminate with a skip, keeping the
	// stream shape stable for the relay.
	Filter func(protocol.Identifier) bool
	// Version is reported in the hello frame.
	Version string
	// Halt, when set, is invoked after the final frame instead of returning.
	// Bare-metal targets park the core here; hosted targets leave it nil.
	Halt func()
}

func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{Version: "dev"}
}

// Runner walks the registered groups in order and writes the measurement
// stream: hello, group and benchmark brackets, exactly one terminal message
// per benchmark, then done.
type Runner struct {
	reg    *Registry
	clk    *clock.Clock
	enc    *protocol.StreamEncoder
	cal    *Calibrator
	smp    *Sampler
	cfg    *RunnerConfig
	logger log.Log
}

func NewRunner(reg *Registry, clk *clock.Clock, out io.Writer, cfg *RunnerConfig, logger log.Log) *Runner {
	if cfg == nil {
		cfg = DefaultRunnerConfig()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{
		reg:    reg,
		clk:    clk,
		enc:    protocol.NewStreamEncoder(out),
		cal:    NewCalibrator(clk),
		smp:    NewSampler(clk),
		cfg:    cfg,
		logger: logger.Named("runner"),
	}
}

// Run validates the registration, then executes every registered case in
// order. Validation failures return before a single frame is written. The
// context is only observed between benchmarks; the timed loop itself cannot
// be interrupted.
func (r *Runner) Run(ctx context.Context) error {
	if verr := r.reg.Validate(); verr != nil {
		return verr
	}

	runCfg := r.reg.Config()
	hello := &protocol.Hello{
		Nonce: uuid.NewString(),
		Clock: protocol.ClockInfo{
			FrequencyHz: r.clk.Frequency(),
			WidthBits:   r.clk.Width(),
		},
		Runner: protocol.RunnerInfo{Name: "telebench", Version: r.cfg.Version},
	}
	if err := r.send(hello); err != nil {
		return err
	}
	r.logger.Info("run started",
		log.String("nonce", hello.Nonce),
		log.String("mode", r.cfg.Mode.String()),
		log.Uint64("frequency_hz", r.clk.Frequency()))

	for _, g := range r.reg.Groups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.send(&protocol.GroupBegin{Group: g.Name()}); err != nil {
			return err
		}
		for i := range g.cases {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.runCase(&g.cases[i], runCfg); err != nil {
				return err
			}
		}
		if err := r.send(&protocol.GroupFinish{Group: g.Name()}); err != nil {
			return err
		}
	}
	if err := r.send(&protocol.Done{}); err != nil {
		return err
	}
	r.logger.Info("run finished")
	if r.cfg.Halt != nil {
		r.cfg.Halt()
	}
	return nil
}

func (r *Runner) runCase(cs *Case, cfg protocol.Config) error {
	id := cs.ID
	if err := r.send(&protocol.BenchBegin{ID: id}); err != nil {
		return err
	}
	switch {
	case cs.SkipReason != "":
		return r.skip(id, cs.SkipReason)
	case r.cfg.Filter != nil && !r.cfg.Filter(id):
		return r.skip(id, "filtered")
	case r.cfg.Mode == ModeCheck:
		return r.check(cs)
	}

	r.logger.Info("benchmarking", log.String("id", id.String()))
	if err := r.send(&protocol.Warmup{ID: id}); err != nil {
		return err
	}
	cal, cerr := r.cal.Calibrate(cfg, cs.Fn)
	if cerr != nil {
		return cerr.WithContext("benchmark", id.String())
	}
	if cal.Clamped {
		r.logger.Warn("sample duration clamped below counter span",
			log.String("id", id.String()),
			log.Uint64("iters_per_sample", cal.ItersPerSample))
	}
	r.logger.Debug("calibrated",
		log.String("id", id.String()),
		log.Uint64("iters_per_sample", cal.ItersPerSample),
		log.Float64("per_iter_ticks", cal.PerIterTicks),
		log.Uint64("warm_up_iters", cal.WarmUpIters))

	start := &protocol.MeasurementStart{
		ID:             id,
		SampleCount:    cfg.SampleSize,
		EstimatedTicks: cal.ProjectedTicks(cfg.SampleSize),
		WarmUpIters:    cal.WarmUpIters,
		WarmUpTicks:    cal.WarmUpTicks,
	}
	if err := r.send(start); err != nil {
		return err
	}
	values, serr := r.smp.Run(cs.Fn, cal.ItersPerSample, cfg.SampleSize)
	if serr != nil {
		return serr.WithContext("benchmark", id.String())
	}
	return r.send(&protocol.MeasurementComplete{
		ID:             id,
		Config:         cfg,
		ItersPerSample: cal.ItersPerSample,
		Values:         values,
	})
}

func (r *Runner) skip(id protocol.Identifier, reason string) error {
	r.logger.Info("skipping", log.String("id", id.String()), log.String("reason", reason))
	return r.send(&protocol.BenchSkip{ID: id, Reason: reason})
}

// check runs the body once with a batch size of one, so broken benchmarks
// fail loudly without spending measurement time.
func (r *Runner) check(cs *Case) error {
	r.logger.Info("checking", log.String("id", cs.ID.String()))
	b := &B{clk: r.clk, iters: 1}
	cs.Fn(b)
	if !b.iterated {
		return errNotIterated().WithContext("benchmark", cs.ID.String())
	}
	return r.skip(cs.ID, "check mode")
}

func (r *Runner) send(msg protocol.Message) error {
	return r.enc.Encode(msg)
}
