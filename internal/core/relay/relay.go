// Package relay implements the host side of a run: build the device binary,
// flash it, then read the measurement stream and republish it, in order, to
// the reporting sink. Every failure is terminal; the relay never retries.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/internal/core/report"
	"github.com/telebench/telebench/internal/core/transport"
	"github.com/telebench/telebench/pkg/concurrent"
)

// State is the relay lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateBuilding
	StateFlashing
	StateRunning
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateFlashing:
		return "flashing"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultWatchdogTimeout bounds device silence while a run is in flight.
const DefaultWatchdogTimeout = 20 * time.Second

// Process exit codes, stable for scripting around the CLI.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitValidation    = 2
	ExitBuildFailed   = 10
	ExitFlashFailed   = 11
	ExitProtocol      = 12
	ExitDeviceTimeout = 13
)

// BuildSystem produces the device binary. Implementations run synchronously
// and return the artifact path.
type BuildSystem interface {
	Build(ctx context.Context, target string, flags []string) (artifact string, err error)
}

// Flasher delivers the artifact to a device and returns the byte stream the
// device writes its measurements to. Closing the transport is the teardown
// path for whatever the flasher started.
type Flasher interface {
	Flash(ctx context.Context, artifact string) (transport.Transport, error)
}

// Config tunes one relay run.
type Config struct {
	// Run is validated before anything is built; the same values reach the
	// spawned device through its environment.
	Run             protocol.Config
	Target          string
	BuildFlags      []string
	WatchdogTimeout time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Run:             protocol.DefaultConfig(),
		WatchdogTimeout: DefaultWatchdogTimeout,
	}
}

// Relay drives build -> flash -> run for one benchmark binary and forwards
// the decoded stream to the sink, strictly one event per message, in order.
type Relay struct {
	cfg     Config
	builder BuildSystem
	flasher Flasher
	sink    report.Sink
	logger  log.Log

	state int32
}

// New assembles a relay. A nil sink discards events; a nil logger is
// replaced with a no-op one.
func New(cfg Config, builder BuildSystem, flasher Flasher, sink report.Sink, logger log.Log) *Relay {
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if sink == nil {
		sink = report.NewMulti()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Relay{
		cfg:     cfg,
		builder: builder,
		flasher: flasher,
		sink:    sink,
		logger:  logger.Named("relay"),
	}
}

// State reports the current lifecycle position.
func (r *Relay) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *Relay) transition(s State) {
	atomic.StoreInt32(&r.state, int32(s))
	r.logger.Debug("state change", log.String("state", s.String()))
}

func (r *Relay) fail(err error) {
	atomic.StoreInt32(&r.state, int32(StateError))
	r.logger.Error("run failed", log.Error(err))
}

// Run executes the full pipeline. The returned error maps to a process exit
// code via ExitCode.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.preflight(); err != nil {
		r.fail(err)
		return err
	}

	r.transition(StateBuilding)
	artifact, err := r.builder.Build(ctx, r.cfg.Target, r.cfg.BuildFlags)
	if err != nil {
		err = ensureCode(err, protocol.ErrorCodeBuildFailed, "build failed")
		r.fail(err)
		return err
	}
	r.logger.Info("build complete", log.String("artifact", artifact))

	r.transition(StateFlashing)
	tr, err := r.flasher.Flash(ctx, artifact)
	if err != nil {
		err = ensureCode(err, protocol.ErrorCodeFlashFailed, "flash failed")
		r.fail(err)
		return err
	}
	r.logger.Info("device stream open", log.String("transport", tr.Info()))

	r.transition(StateRunning)
	if err := r.relayStream(ctx, transport.WithLogging(tr, r.logger)); err != nil {
		r.fail(err)
		return err
	}

	r.transition(StateFinished)
	return nil
}

// preflight rejects bad configuration before any build or flash work.
func (r *Relay) preflight() error {
	if err := bench.ValidateConfig(r.cfg.Run); err != nil {
		return err
	}
	if r.builder == nil || r.flasher == nil {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			"relay requires a build system and a flasher", nil)
	}
	return nil
}

type pumpItem struct {
	msg protocol.Message
	err error
}

// relayStream runs the read pump and the state loop until the stream is done
// or dead, then tears the transport down.
func (r *Relay) relayStream(ctx context.Context, tr transport.Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan pumpItem, 16)
	g, gctx := concurrent.WithContext(ctx)
	g.Go(func(ctx context.Context) error {
		r.pump(ctx, tr, items)
		return nil
	})

	err := r.stateLoop(gctx, items)

	// Release the pump from whichever call it is parked in.
	cancel()
	if cerr := tr.Close(); cerr != nil {
		r.logger.Warn("transport close", log.Error(cerr))
	}
	_ = g.Wait()
	return err
}

// pump decodes frames and hands them to the state loop in stream order. The
// first decode error, EOF included, ends the pump.
func (r *Relay) pump(ctx context.Context, tr transport.Transport, items chan<- pumpItem) {
	dec := protocol.NewStreamDecoder(tr)
	for {
		msg, err := dec.Next()
		select {
		case items <- pumpItem{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// stateLoop consumes decoded messages, enforces ordering, forwards exactly
// one sink event per message, and arms the silence watchdog between
// messages. It returns nil only after Done has been forwarded.
func (r *Relay) stateLoop(ctx context.Context, items <-chan pumpItem) error {
	tracker := protocol.NewOrderTracker()
	watchdog := time.NewTimer(r.cfg.WatchdogTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-watchdog.C:
			awaiting := "begin"
			if id, ok := tracker.InBenchmark(); ok {
				awaiting = "complete for " + id.String()
			}
			return protocol.NewDeviceTimeout(fmt.Sprintf(
				"no message within %s while awaiting %s", r.cfg.WatchdogTimeout, awaiting))

		case it := <-items:
			if it.err != nil {
				return streamFailure(it.err)
			}
			watchdog.Reset(r.cfg.WatchdogTimeout)

			if err := tracker.Observe(it.msg); err != nil {
				return err
			}
			if err := r.forward(it.msg); err != nil {
				return err
			}
			if it.msg.Kind() == protocol.KindDone {
				return nil
			}
		}
	}
}

// streamFailure maps a pump error to the relay's error taxonomy. Decoder
// errors already carry their codes; raw transport failures and premature
// EOF become stream-closed protocol errors.
func streamFailure(err error) error {
	if errors.Is(err, io.EOF) {
		return protocol.NewProtocolError(protocol.ErrorCodeStreamClosed,
			"stream ended before done", protocol.ErrStreamClosed)
	}
	if code := protocol.GetErrorCode(err); code != protocol.ErrorCodeUnknownError {
		return err
	}
	return protocol.NewProtocolError(protocol.ErrorCodeStreamClosed, "transport failed", err)
}

// forward republishes one decoded message as exactly one sink event.
func (r *Relay) forward(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Hello:
		r.logger.Info("device hello",
			log.String("nonce", m.Nonce),
			log.Uint64("frequency_hz", m.Clock.FrequencyHz),
			log.Any("width_bits", m.Clock.WidthBits))
		return r.sink.RunStarted(*m)
	case *protocol.GroupBegin:
		return r.sink.GroupStarted(m.Group)
	case *protocol.GroupFinish:
		return r.sink.GroupFinished(m.Group)
	case *protocol.BenchBegin:
		return r.sink.BenchmarkStarted(m.ID)
	case *protocol.Warmup:
		return r.sink.Progress(m.ID, report.Phase{Kind: report.PhaseWarmUp})
	case *protocol.MeasurementStart:
		return r.sink.Progress(m.ID, report.Phase{
			Kind:           report.PhaseMeasuring,
			SampleCount:    m.SampleCount,
			EstimatedTicks: m.EstimatedTicks,
		})
	case *protocol.MeasurementComplete:
		return r.sink.MeasurementComplete(report.Report{
			ID:             m.ID,
			Config:         m.Config,
			ItersPerSample: m.ItersPerSample,
			Values:         m.Values,
		})
	case *protocol.BenchSkip:
		return r.sink.BenchmarkSkipped(m.ID, m.Reason)
	case *protocol.Done:
		return r.sink.RunFinished()
	default:
		return protocol.NewProtocolError(protocol.ErrorCodeUnknownMessageType,
			fmt.Sprintf("no sink mapping for %q", msg.Kind()), protocol.ErrUnknownMessageType)
	}
}

// ensureCode wraps collaborator errors that are not already categorized.
func ensureCode(err error, code protocol.ErrorCode, msg string) error {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return err
	}
	return protocol.NewError(code, msg, err)
}

// ExitCode maps a relay error to the stable process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	code := protocol.GetErrorCode(err)
	switch {
	case code == protocol.ErrorCodeBuildFailed:
		return ExitBuildFailed
	case code == protocol.ErrorCodeFlashFailed:
		return ExitFlashFailed
	case code >= 3000 && code < 4000:
		return ExitProtocol
	case code == protocol.ErrorCodeDeviceTimeout:
		return ExitDeviceTimeout
	case code >= 5000 && code < 6000:
		return ExitValidation
	default:
		return ExitFailure
	}
}
