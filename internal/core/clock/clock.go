// Package clock wraps monotonic tick counters of a fixed bit width and
// computes elapsed tick counts that stay correct across counter overflow.
package clock

import (
	"errors"
	"fmt"
)

// Snapshot is a raw counter value. Only the low Width bits are meaningful;
// arithmetic on snapshots must go through Clock.Elapsed.
type Snapshot uint64

// Source provides raw tick values from some monotonic counter. Implementations
// are not required to be safe for concurrent use; the measurement loop is
// single-threaded.
type Source interface {
	// Now returns the current counter value. Values above 2^Width wrap.
	Now() Snapshot
	// Width returns the counter width in bits, between 1 and 64.
	Width() uint
	// Frequency returns ticks per second, or 0 when unknown.
	Frequency() uint64
}

// Clock binds a Source with the modular arithmetic for its width.
type Clock struct {
	src  Source
	mask uint64
}

var ErrBadWidth = errors.New("clock: counter width must be between 1 and 64 bits")

func New(src Source) (*Clock, error) {
	w := src.Width()
	if w < 1 || w > 64 {
		return nil, fmt.Errorf("%w: got %d", ErrBadWidth, w)
	}
	var mask uint64
	if w == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << w) - 1
	}
	return &Clock{src: src, mask: mask}, nil
}

// MustNew is New for sources whose width is known-valid at compile time.
func MustNew(src Source) *Clock {
	c, err := New(src)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Clock) Now() Snapshot {
	return c.src.Now()
}

// Elapsed returns the tick count between two snapshots as (end - start)
// modulo 2^Width. Correct for any true duration below one full counter
// period; longer durations wrap undetectably, which is why calibration
// clamps projected sample durations below MaxSpan.
func (c *Clock) Elapsed(start, end Snapshot) uint64 {
	return (uint64(end) - uint64(start)) & c.mask
}

// Mask returns 2^Width - 1.
func (c *Clock) Mask() uint64 {
	return c.mask
}

// MaxSpan returns the largest elapsed tick count this clock can represent
// without wrapping.
func (c *Clock) MaxSpan() uint64 {
	return c.mask
}

func (c *Clock) Width() uint {
	return c.src.Width()
}

func (c *Clock) Frequency() uint64 {
	return c.src.Frequency()
}

// TicksToSeconds converts a tick count to seconds using the source frequency.
// Returns 0 when the frequency is unknown.
func (c *Clock) TicksToSeconds(ticks uint64) float64 {
	f := c.src.Frequency()
	if f == 0 {
		return 0
	}
	return float64(ticks) / float64(f)
}
