package bench

import (
	"fmt"

	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/protocol"
)

// Sampler executes calibrated batches and records raw elapsed-tick values
// into a fixed-capacity buffer. Nothing allocates between the first and the
// last snapshot of a run.
type Sampler struct {
	b   B
	buf [MaxSampleCapacity]uint64
}

func NewSampler(clk *clock.Clock) *Sampler {
	s := &Sampler{}
	s.b.clk = clk
	return s
}

// Run takes sampleCount samples of fn at the given batch size. The returned
// slice aliases the Sampler's buffer and is valid only until the next Run.
func (s *Sampler) Run(fn Func, itersPerSample uint64, sampleCount int) ([]uint64, *protocol.Error) {
	if sampleCount < 1 {
		return nil, protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("sample count must be positive, got %d", sampleCount),
			protocol.ErrInvalidConfig)
	}
	if sampleCount > MaxSampleCapacity {
		return nil, protocol.NewValidationError(protocol.ErrorCodeSampleBufferExceeded,
			fmt.Sprintf("sample count %d exceeds compiled capacity %d", sampleCount, MaxSampleCapacity),
			protocol.ErrSampleBufferExceeded)
	}
	s.b.iters = itersPerSample
	out := s.buf[:sampleCount]
	for i := range out {
		s.b.iterated = false
		fn(&s.b)
		if !s.b.iterated {
			return nil, errNotIterated()
		}
		out[i] = s.b.value
	}
	return out, nil
}
