package report

import "github.com/telebench/telebench/internal/core/protocol"

// Multi fans each event out to several sinks, in registration order. The
// first sink error stops the fan-out and aborts the run; a half-delivered
// event must never be followed by the next one.
type Multi struct {
	sinks []Sink
}

var _ Sink = (*Multi)(nil)

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) each(fn func(Sink) error) error {
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) RunStarted(hello protocol.Hello) error {
	return m.each(func(s Sink) error { return s.RunStarted(hello) })
}

func (m *Multi) GroupStarted(name string) error {
	return m.each(func(s Sink) error { return s.GroupStarted(name) })
}

func (m *Multi) BenchmarkStarted(id protocol.Identifier) error {
	return m.each(func(s Sink) error { return s.BenchmarkStarted(id) })
}

func (m *Multi) Progress(id protocol.Identifier, phase Phase) error {
	return m.each(func(s Sink) error { return s.Progress(id, phase) })
}

func (m *Multi) MeasurementComplete(rep Report) error {
	return m.each(func(s Sink) error { return s.MeasurementComplete(rep) })
}

func (m *Multi) BenchmarkSkipped(id protocol.Identifier, reason string) error {
	return m.each(func(s Sink) error { return s.BenchmarkSkipped(id, reason) })
}

func (m *Multi) GroupFinished(name string) error {
	return m.each(func(s Sink) error { return s.GroupFinished(name) })
}

func (m *Multi) RunFinished() error {
	return m.each(func(s Sink) error { return s.RunFinished() })
}
