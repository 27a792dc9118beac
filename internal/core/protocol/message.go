package protocol

import (
	"strings"
	"time"
)

// --- Message variants ---

// Kind is the wire tag identifying a message variant.
type Kind string

const (
	KindHello               Kind = "hello"
	KindGroupBegin          Kind = "group_begin"
	KindGroupFinish         Kind = "group_finish"
	KindBenchBegin          Kind = "bench_begin"
	KindWarmup              Kind = "warmup"
	KindMeasurementStart    Kind = "measurement_start"
	KindMeasurementComplete Kind = "measurement_complete"
	KindBenchSkip           Kind = "bench_skip"
	KindDone                Kind = "done"
)

// Message is one decoded protocol message. The device writes them in a
// strict order (see OrderTracker); the relay forwards exactly one downstream
// event per message.
type Message interface {
	Kind() Kind
}

// ThroughputKind tags what a benchmark processes per invocation.
type ThroughputKind string

const (
	ThroughputBytes    ThroughputKind = "bytes"
	ThroughputElements ThroughputKind = "elements"
)

// Throughput declares how much data one invocation of the benchmark
// processes, letting reporters derive rates from per-iteration cost.
type Throughput struct {
	Kind   ThroughputKind `json:"kind"`
	Amount uint64         `json:"amount"`
}

// Identifier names one benchmark invocation within a run. Group is required;
// Function and ValueStr refine it for multi-function groups and parameterized
// inputs. The triple must be unique within a run.
type Identifier struct {
	Group      string      `json:"group"`
	Function   string      `json:"function,omitempty"`
	ValueStr   string      `json:"value,omitempty"`
	Throughput *Throughput `json:"throughput,omitempty"`
}

// String renders the identifier as group/function/value, omitting empty
// parts.
func (id Identifier) String() string {
	parts := make([]string, 0, 3)
	parts = append(parts, id.Group)
	if id.Function != "" {
		parts = append(parts, id.Function)
	}
	if id.ValueStr != "" {
		parts = append(parts, id.ValueStr)
	}
	return strings.Join(parts, "/")
}

// Key returns the uniqueness key for duplicate detection.
func (id Identifier) Key() string {
	return id.Group + "\x00" + id.Function + "\x00" + id.ValueStr
}

// Config carries the measurement parameters for one run. Nresamples is an
// opaque pass-through for the downstream statistics consumer; the core never
// interprets it. Durations ride the wire as integer nanoseconds.
type Config struct {
	MeasurementTime time.Duration `json:"measurement_time_ns"`
	WarmUpTime      time.Duration `json:"warm_up_time_ns"`
	SampleSize      int           `json:"sample_size"`
	Nresamples      int           `json:"nresamples"`
}

// DefaultConfig returns the standard measurement parameters.
func DefaultConfig() Config {
	return Config{
		MeasurementTime: 5 * time.Second,
		WarmUpTime:      3 * time.Second,
		SampleSize:      50,
		Nresamples:      100_000,
	}
}

// ClockInfo describes the device tick counter so hosts can convert ticks to
// wall time and reason about wraparound.
type ClockInfo struct {
	FrequencyHz uint64 `json:"frequency_hz"`
	WidthBits   uint   `json:"width_bits"`
}

// RunnerInfo identifies the device runner build.
type RunnerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Hello is the first frame of every stream. Its nonce names the run, and its
// presence is what the relay locks onto when the transport carries leading
// noise (flasher logs, probe chatter).
type Hello struct {
	Nonce  string     `json:"nonce"`
	Clock  ClockInfo  `json:"clock"`
	Runner RunnerInfo `json:"runner"`
}

func (*Hello) Kind() Kind { return KindHello }

// GroupBegin brackets the start of a benchmark group.
type GroupBegin struct {
	Group string `json:"group"`
}

func (*GroupBegin) Kind() Kind { return KindGroupBegin }

// GroupFinish brackets the end of a benchmark group.
type GroupFinish struct {
	Group string `json:"group"`
}

func (*GroupFinish) Kind() Kind { return KindGroupFinish }

// BenchBegin announces one benchmark. Exactly one terminal message
// (MeasurementComplete or BenchSkip) for the same identifier must follow
// before the next BenchBegin or Done.
type BenchBegin struct {
	ID Identifier `json:"id"`
}

func (*BenchBegin) Kind() Kind { return KindBenchBegin }

// Warmup reports that calibration is running for a benchmark. Progress only;
// reporters may ignore it.
type Warmup struct {
	ID Identifier `json:"id"`
}

func (*Warmup) Kind() Kind { return KindWarmup }

// MeasurementStart reports that sampling began, carrying the warm-up totals
// and the calibrated estimate so reporters can show expected duration.
type MeasurementStart struct {
	ID             Identifier `json:"id"`
	SampleCount    int        `json:"sample_count"`
	EstimatedTicks uint64     `json:"estimated_ticks"`
	WarmUpIters    uint64     `json:"warm_up_iters"`
	WarmUpTicks    uint64     `json:"warm_up_ticks"`
}

func (*MeasurementStart) Kind() Kind { return KindMeasurementStart }

// MeasurementComplete is the successful terminal message for one benchmark.
// Values holds exactly SampleSize elapsed-tick measurements, each covering
// ItersPerSample invocations, in the order they were taken.
type MeasurementComplete struct {
	ID             Identifier `json:"id"`
	Config         Config     `json:"config"`
	ItersPerSample uint64     `json:"iters_per_sample"`
	Values         []uint64   `json:"values"`
}

func (*MeasurementComplete) Kind() Kind { return KindMeasurementComplete }

// BenchSkip is the terminal message for a benchmark that declined to run.
type BenchSkip struct {
	ID     Identifier `json:"id"`
	Reason string     `json:"reason"`
}

func (*BenchSkip) Kind() Kind { return KindBenchSkip }

// Done ends the stream. Nothing may follow it.
type Done struct{}

func (*Done) Kind() Kind { return KindDone }

// newByKind returns a zero value of the variant for a wire tag, or nil for
// unknown tags.
func newByKind(k Kind) Message {
	switch k {
	case KindHello:
		return &Hello{}
	case KindGroupBegin:
		return &GroupBegin{}
	case KindGroupFinish:
		return &GroupFinish{}
	case KindBenchBegin:
		return &BenchBegin{}
	case KindWarmup:
		return &Warmup{}
	case KindMeasurementStart:
		return &MeasurementStart{}
	case KindMeasurementComplete:
		return &MeasurementComplete{}
	case KindBenchSkip:
		return &BenchSkip{}
	case KindDone:
		return &Done{}
	default:
		return nil
	}
}
