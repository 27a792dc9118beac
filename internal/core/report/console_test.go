package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebench/telebench/internal/core/protocol"
)

func ghzHello(nonce string) protocol.Hello {
	return protocol.Hello{
		Nonce:  nonce,
		Clock:  protocol.ClockInfo{FrequencyHz: 1_000_000_000, WidthBits: 64},
		Runner: protocol.RunnerInfo{Name: "telebench", Version: "dev"},
	}
}

func TestConsoleRendersRun(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.RunStarted(ghzHello("abc123")))
	require.NoError(t, c.GroupStarted("sorting"))

	id := protocol.Identifier{Group: "sorting", Function: "std_sort", ValueStr: "64"}
	require.NoError(t, c.BenchmarkStarted(id))
	require.NoError(t, c.Progress(id, Phase{Kind: PhaseWarmUp}))
	require.NoError(t, c.Progress(id, Phase{Kind: PhaseMeasuring, SampleCount: 50, EstimatedTicks: 5_000_000_000}))

	values := make([]uint64, 50)
	for i := range values {
		values[i] = 1000
	}
	require.NoError(t, c.MeasurementComplete(Report{
		ID:             id,
		Config:         protocol.DefaultConfig(),
		ItersPerSample: 100,
		Values:         values,
	}))
	require.NoError(t, c.BenchmarkSkipped(protocol.Identifier{Group: "sorting", Function: "bubble"}, "unsupported"))
	require.NoError(t, c.GroupFinished("sorting"))
	require.NoError(t, c.RunFinished())

	out := buf.String()
	assert.Contains(t, out, "telebench run abc123")
	assert.Contains(t, out, "counter 64-bit @ 1.0000 GHz")
	assert.Contains(t, out, "\nsorting\n")
	assert.Contains(t, out, "std_sort/64")
	assert.Contains(t, out, "warming up")
	assert.Contains(t, out, "collecting 50 samples in estimated 5.0000 s")
	// 1000 ticks across 100 iterations at 1 GHz is 10 ns per iteration.
	assert.Contains(t, out, "time: [10.000 ns 10.000 ns 10.000 ns]")
	assert.Contains(t, out, "skipped (unsupported)")
	assert.Contains(t, out, "1 measured, 1 skipped")
	// A single result does not earn a ranking section.
	assert.NotContains(t, out, "slowest per iteration")
}

func TestConsoleThroughputLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.RunStarted(ghzHello("tp")))

	id := protocol.Identifier{
		Group:      "hashing",
		Function:   "xxh64",
		Throughput: &protocol.Throughput{Kind: protocol.ThroughputBytes, Amount: 1024},
	}
	// 1000 ticks per iteration at 1 GHz: 1 µs for 1 KiB, so ~976.56 MiB/s.
	require.NoError(t, c.MeasurementComplete(Report{ID: id, ItersPerSample: 1, Values: []uint64{1000, 1000}}))

	out := buf.String()
	assert.Contains(t, out, "thrpt: [")
	assert.Contains(t, out, "976.56 MiB/s")
}

func TestConsoleElementThroughput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.RunStarted(ghzHello("tp2")))

	id := protocol.Identifier{
		Group:      "sorting",
		Function:   "insertion",
		ValueStr:   "64",
		Throughput: &protocol.Throughput{Kind: protocol.ThroughputElements, Amount: 64},
	}
	// 640 ticks per iteration at 1 GHz: 64 elements in 640 ns is 100 Melem/s.
	require.NoError(t, c.MeasurementComplete(Report{ID: id, ItersPerSample: 10, Values: []uint64{6400}}))

	assert.Contains(t, buf.String(), "100.00 Melem/s")
}

func TestConsoleSlowestRanking(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.RunStarted(ghzHello("rank")))

	means := map[string]uint64{"alpha": 10, "beta": 30, "gamma": 20}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		id := protocol.Identifier{Group: name}
		require.NoError(t, c.MeasurementComplete(Report{
			ID:             id,
			ItersPerSample: 1,
			Values:         []uint64{means[name], means[name]},
		}))
	}
	require.NoError(t, c.RunFinished())

	out := buf.String()
	idx := strings.Index(out, "slowest per iteration")
	require.GreaterOrEqual(t, idx, 0)
	section := out[idx:]

	// Slowest first: beta (30 ticks), gamma (20), alpha (10).
	bi := strings.Index(section, "beta")
	gi := strings.Index(section, "gamma")
	ai := strings.Index(section, "alpha")
	require.True(t, bi >= 0 && gi >= 0 && ai >= 0)
	assert.Less(t, bi, gi)
	assert.Less(t, gi, ai)
}

func TestConsoleWithoutClockFallsBackToTicks(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	id := protocol.Identifier{Group: "g", Function: "f"}
	require.NoError(t, c.MeasurementComplete(Report{ID: id, ItersPerSample: 1, Values: []uint64{42}}))

	assert.Contains(t, buf.String(), "ticks")
}

func TestBenchLabel(t *testing.T) {
	cases := []struct {
		id   protocol.Identifier
		want string
	}{
		{protocol.Identifier{Group: "g", Function: "f", ValueStr: "64"}, "f/64"},
		{protocol.Identifier{Group: "g", Function: "f"}, "f"},
		{protocol.Identifier{Group: "g", ValueStr: "64"}, "64"},
		{protocol.Identifier{Group: "g"}, "g"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, benchLabel(tc.id))
	}
}

func TestFormatTimeLadder(t *testing.T) {
	assert.Equal(t, "500.00 ps", formatTime(0.5))
	assert.Equal(t, "12.000 ns", formatTime(12))
	assert.Equal(t, "1.5000 µs", formatTime(1500))
	assert.Equal(t, "2.5000 ms", formatTime(2_500_000))
	assert.Equal(t, "3.0000 s", formatTime(3_000_000_000))
}
