package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedAcrossWraparound(t *testing.T) {
	tests := []struct {
		name  string
		width uint
		start Snapshot
		end   Snapshot
		want  uint64
	}{
		{"32-bit wrap", 32, 0xFFFFFFF0, 0x00000010, 0x20},
		{"32-bit no wrap", 32, 100, 350, 250},
		{"24-bit wrap", 24, 0xFFFFF0, 0x000008, 0x18},
		{"24-bit full range", 24, 1, 0, 0xFFFFFF},
		{"64-bit natural wrap", 64, ^Snapshot(0) - 9, 10, 20},
		{"zero elapsed", 32, 42, 42, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(NewSimulatedSource(tt.width, 1_000_000))
			require.NoError(t, err, "clock should accept width %d", tt.width)
			assert.Equal(t, tt.want, c.Elapsed(tt.start, tt.end))
		})
	}
}

func TestNewRejectsBadWidth(t *testing.T) {
	_, err := New(NewSimulatedSource(0, 1))
	require.ErrorIs(t, err, ErrBadWidth, "zero width should be rejected")

	_, err = New(NewSimulatedSource(65, 1))
	require.ErrorIs(t, err, ErrBadWidth, "width above 64 should be rejected")
}

func TestMaskAndMaxSpan(t *testing.T) {
	c := MustNew(NewSimulatedSource(24, 1))
	assert.Equal(t, uint64(0xFFFFFF), c.Mask())
	assert.Equal(t, uint64(0xFFFFFF), c.MaxSpan())
	assert.Equal(t, uint(24), c.Width())

	c64 := MustNew(NewSimulatedSource(64, 1))
	assert.Equal(t, ^uint64(0), c64.Mask())
}

func TestTicksToSeconds(t *testing.T) {
	c := MustNew(NewSimulatedSource(32, 1_000_000))
	assert.InDelta(t, 1.5, c.TicksToSeconds(1_500_000), 1e-9)

	unknown := MustNew(NewSimulatedSource(32, 0))
	assert.Zero(t, unknown.TicksToSeconds(12345), "unknown frequency converts to zero")
}

func TestSimulatedSourceScripting(t *testing.T) {
	src := NewSimulatedSource(32, 1000)
	c := MustNew(src)

	start := c.Now()
	src.Advance(500)
	end := c.Now()
	assert.Equal(t, uint64(500), c.Elapsed(start, end))

	src.Set(0xFFFFFFF0)
	start = c.Now()
	src.Advance(0x20)
	end = c.Now()
	assert.Equal(t, uint64(0x20), c.Elapsed(start, end), "scripted wrap should read through the mask")
}

func TestSimulatedSourceReadCost(t *testing.T) {
	src := NewSimulatedSource(32, 1000).WithReadCost(7)
	c := MustNew(src)

	start := c.Now()
	end := c.Now()
	assert.Equal(t, uint64(7), c.Elapsed(start, end), "each read advances by the read cost")
}

func TestHostSource(t *testing.T) {
	src := NewHostSource()
	c := MustNew(src)

	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, uint64(b), uint64(a), "host source must be monotonic")
	assert.Equal(t, uint(64), src.Width())
	assert.Equal(t, uint64(1e9), src.Frequency())
}
