// Package bench is the device-resident measurement engine: ordered benchmark
// registration, warm-up calibration, and fixed-buffer sampling, emitting one
// protocol message per state change on the outbound stream.
package bench

import (
	"fmt"

	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/protocol"
)

// MaxSampleCapacity is the compiled-in sample buffer size. Configurations
// requesting more samples are rejected at validation time, before any build,
// flash, or measurement happens.
const MaxSampleCapacity = 512

// Func is one registered benchmark body. It must call (*B).Iter or
// (*B).IterCustom exactly once per invocation.
type Func func(b *B)

// B drives the timed loop for one benchmark invocation. The engine sets the
// batch size; the body wraps its workload in Iter.
type B struct {
	clk      *clock.Clock
	iters    uint64
	value    uint64
	iterated bool
}

// Iters returns the number of invocations the current batch must execute.
func (b *B) Iters() uint64 {
	return b.iters
}

// Iter times routine by running it Iters times back to back between two
// counter snapshots, with no timing calls in between.
func (b *B) Iter(routine func()) {
	b.iterated = true
	start := b.clk.Now()
	for i := uint64(0); i < b.iters; i++ {
		routine()
	}
	end := b.clk.Now()
	b.value = b.clk.Elapsed(start, end)
}

// IterCustom hands the batch size to routine and trusts it to measure its own
// elapsed ticks, for workloads that must control the timed region themselves.
func (b *B) IterCustom(routine func(iters uint64) uint64) {
	b.iterated = true
	b.value = routine(b.iters)
}

// Keep returns v unchanged while preventing the compiler from discarding the
// computation that produced it.
//
//go:noinline
func Keep[T any](v T) T {
	return v
}

// ValidateConfig rejects configurations the device could not honor. It runs
// before anything else so that an oversized sample buffer or a nonsense
// duration fails before a build or flash is ever attempted.
func ValidateConfig(cfg protocol.Config) *protocol.Error {
	if cfg.SampleSize < 1 {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("sample size must be positive, got %d", cfg.SampleSize),
			protocol.ErrInvalidConfig)
	}
	if cfg.SampleSize > MaxSampleCapacity {
		return protocol.NewValidationError(protocol.ErrorCodeSampleBufferExceeded,
			fmt.Sprintf("sample size %d exceeds compiled capacity %d", cfg.SampleSize, MaxSampleCapacity),
			protocol.ErrSampleBufferExceeded).
			WithContext("sample_size", cfg.SampleSize).
			WithContext("capacity", MaxSampleCapacity)
	}
	if cfg.MeasurementTime <= 0 {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("measurement time must be positive, got %v", cfg.MeasurementTime),
			protocol.ErrInvalidConfig)
	}
	if cfg.WarmUpTime <= 0 {
		return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("warm-up time must be positive, got %v", cfg.WarmUpTime),
			protocol.ErrInvalidConfig)
	}
	return nil
}

func errNotIterated() *protocol.Error {
	return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
		"benchmark body returned without calling (*B).Iter", protocol.ErrInvalidConfig)
}
