// Package report defines the downstream consumer surface. The relay calls a
// Sink exactly once per decoded message, in stream order; sinks render,
// persist, or fan out the events but never reorder them.
package report

import (
	"math"

	"github.com/telebench/telebench/internal/core/protocol"
)

// PhaseKind tags where a benchmark is inside its measurement cycle.
type PhaseKind string

const (
	PhaseWarmUp    PhaseKind = "warm_up"
	PhaseMeasuring PhaseKind = "measuring"
)

// Phase is a progress marker. The measuring phase carries what the device
// announced at measurement start.
type Phase struct {
	Kind           PhaseKind
	SampleCount    int
	EstimatedTicks uint64
}

// Report is one finished benchmark: identifier, batch size, the raw sample
// values in measurement order, and the config that produced them. Values are
// elapsed ticks per sample; statistics beyond simple aggregates belong to
// downstream tooling.
type Report struct {
	ID             protocol.Identifier `json:"id"`
	Config         protocol.Config     `json:"config"`
	ItersPerSample uint64              `json:"iters_per_sample"`
	Values         []uint64            `json:"values"`
}

// Sink consumes relay events. Every method may veto the run by returning an
// error; the relay aborts rather than let sink state diverge from the stream.
type Sink interface {
	RunStarted(hello protocol.Hello) error
	GroupStarted(name string) error
	BenchmarkStarted(id protocol.Identifier) error
	Progress(id protocol.Identifier, phase Phase) error
	MeasurementComplete(rep Report) error
	BenchmarkSkipped(id protocol.Identifier, reason string) error
	GroupFinished(name string) error
	RunFinished() error
}

// Summary aggregates one benchmark's samples into per-iteration tick costs.
type Summary struct {
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// Summarize reduces per-sample elapsed ticks to per-iteration statistics.
// StdDev is the sample standard deviation, zero for fewer than two samples.
func Summarize(values []uint64, itersPerSample uint64) Summary {
	if len(values) == 0 || itersPerSample == 0 {
		return Summary{}
	}
	iters := float64(itersPerSample)

	var s Summary
	s.Min = math.Inf(1)
	sum := 0.0
	for _, v := range values {
		per := float64(v) / iters
		sum += per
		if per < s.Min {
			s.Min = per
		}
		if per > s.Max {
			s.Max = per
		}
	}
	s.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := float64(v)/iters - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(values)-1))
	}
	return s
}
