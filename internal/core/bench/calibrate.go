package bench

import (
	"math"
	"time"

	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/protocol"
)

const (
	// maxCalibrationIters caps the exponential batch search so it always
	// terminates, even on a counter that never advances.
	maxCalibrationIters = 1 << 30
	// minResolutionTicks is the smallest elapsed reading trusted for the
	// per-iteration estimate; anything below it is counter-granularity noise.
	minResolutionTicks = 100
)

// Calibration is the outcome of the warm-up phase for one benchmark.
type Calibration struct {
	// ItersPerSample is the batch size chosen so that one sample's duration
	// approximates MeasurementTime / SampleSize.
	ItersPerSample uint64
	// PerIterTicks is the estimated cost of a single invocation.
	PerIterTicks float64
	// WarmUpIters and WarmUpTicks are the totals spent warming up.
	WarmUpIters uint64
	WarmUpTicks uint64
	// Clamped is set when the projected sample duration had to be reduced to
	// stay below the counter's wraparound span. Degraded precision, not an
	// error: the benchmark still runs and reports.
	Clamped bool
}

// ProjectedTicks returns the estimated total tick count for sampleCount
// samples at the calibrated batch size.
func (c Calibration) ProjectedTicks(sampleCount int) uint64 {
	return clampUint64(c.PerIterTicks * float64(c.ItersPerSample) * float64(sampleCount))
}

// Calibrator chooses how many invocations to batch into one timed sample so
// that the sample's wall time approximates the configured target duration.
type Calibrator struct {
	clk           *clock.Clock
	minResolution uint64
	maxIters      uint64
}

func NewCalibrator(clk *clock.Clock) *Calibrator {
	return &Calibrator{
		clk:           clk,
		minResolution: minResolutionTicks,
		maxIters:      maxCalibrationIters,
	}
}

// Calibrate runs the exponential warm-up search: batch sizes double until the
// cumulative warm-up budget is spent, the safety cap is reached, or one more
// doubling could wrap the counter. The per-iteration estimate comes from the
// last reading that cleared the resolution threshold, falling back to the
// cumulative totals when no reading did.
func (c *Calibrator) Calibrate(cfg protocol.Config, fn Func) (Calibration, *protocol.Error) {
	b := &B{clk: c.clk}
	budget := c.ticksIn(cfg.WarmUpTime)
	// A warm-up reading must stay far enough below the counter span that the
	// next doubling cannot wrap.
	readingCeil := c.clk.MaxSpan() >> 2

	var (
		spent        uint64
		totalIters   uint64
		trustElapsed uint64
		trustIters   uint64
	)
	for iters := uint64(1); ; iters <<= 1 {
		b.iters = iters
		b.iterated = false
		fn(b)
		if !b.iterated {
			return Calibration{}, errNotIterated()
		}
		elapsed := b.value
		spent += elapsed
		totalIters += iters
		if elapsed >= c.minResolution {
			trustElapsed, trustIters = elapsed, iters
		}
		if float64(spent) > budget || iters >= c.maxIters || elapsed > readingCeil {
			break
		}
	}

	cal := Calibration{WarmUpIters: totalIters, WarmUpTicks: spent}
	switch {
	case trustIters > 0:
		cal.PerIterTicks = float64(trustElapsed) / float64(trustIters)
	case spent > 0:
		cal.PerIterTicks = float64(spent) / float64(totalIters)
	}
	if cal.PerIterTicks <= 0 {
		// The counter never advanced. Run the largest bounded batch and let
		// the samples report whatever the hardware shows.
		cal.ItersPerSample = c.maxIters
		cal.Clamped = true
		return cal, nil
	}

	target := c.ticksIn(cfg.MeasurementTime) / float64(cfg.SampleSize)
	ipf := math.Round(target / cal.PerIterTicks)
	if ipf < 1 {
		ipf = 1
	}
	if span := float64(c.clk.MaxSpan()); ipf*cal.PerIterTicks > span {
		ipf = math.Floor(span / cal.PerIterTicks)
		if ipf < 1 {
			ipf = 1
		}
		cal.Clamped = true
	}
	cal.ItersPerSample = clampUint64(ipf)
	return cal, nil
}

func (c *Calibrator) ticksIn(d time.Duration) float64 {
	return d.Seconds() * float64(c.clk.Frequency())
}

func clampUint64(f float64) uint64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}
