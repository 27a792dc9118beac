package telebench

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/protocol"
)

// swapRegistry gives each test a private program registry.
func swapRegistry(t *testing.T) {
	t.Helper()
	saved := std
	std = bench.NewRegistry()
	t.Cleanup(func() { std = saved })
}

func simSource() *clock.SimulatedSource {
	return clock.NewSimulatedSource(32, 1_000_000_000).WithReadCost(5)
}

func fastConfig(samples int) Config {
	return Config{
		MeasurementTime: time.Millisecond,
		WarmUpTime:      time.Millisecond,
		SampleSize:      samples,
		Nresamples:      100,
	}
}

func decodeAll(t *testing.T, r io.Reader) []protocol.Message {
	t.Helper()
	dec := protocol.NewStreamDecoder(r)
	var msgs []protocol.Message
	for {
		msg, err := dec.Next()
		if err == io.EOF {
			return msgs
		}
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
}

func TestRunEmitsOrderedStream(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(3))

	var acc int
	NewGroup("math").
		Throughput(Elements, 64).
		Bench("add", func(b *B) {
			b.Iter(func() { acc++ })
		}).
		BenchValue("mul", "64", func(b *B) {
			b.Iter(func() { acc *= 3 })
		})
	NewGroup("io").Skip("dma", "no controller")

	var buf bytes.Buffer
	rc := run(std, false, "", WithOutput(&buf), WithSource(simSource()), WithVersion("9.9.9"))
	require.Equal(t, 0, rc)

	msgs := decodeAll(t, &buf)
	require.Len(t, msgs, 16)

	hello, ok := msgs[0].(*protocol.Hello)
	require.True(t, ok)
	assert.Equal(t, "telebench", hello.Runner.Name)
	assert.Equal(t, "9.9.9", hello.Runner.Version)
	assert.Equal(t, uint64(1_000_000_000), hello.Clock.FrequencyHz)
	assert.Equal(t, uint(32), hello.Clock.WidthBits)

	require.IsType(t, &protocol.GroupBegin{}, msgs[1])
	require.IsType(t, &protocol.BenchBegin{}, msgs[2])
	require.IsType(t, &protocol.Warmup{}, msgs[3])
	require.IsType(t, &protocol.MeasurementStart{}, msgs[4])
	done, ok := msgs[5].(*protocol.MeasurementComplete)
	require.True(t, ok)
	assert.Equal(t, "math/add", done.ID.String())
	assert.Len(t, done.Values, 3)
	assert.GreaterOrEqual(t, done.ItersPerSample, uint64(1))
	require.NotNil(t, done.ID.Throughput)
	assert.Equal(t, protocol.ThroughputElements, done.ID.Throughput.Kind)
	assert.Equal(t, uint64(64), done.ID.Throughput.Amount)

	mul, ok := msgs[9].(*protocol.MeasurementComplete)
	require.True(t, ok)
	assert.Equal(t, "math/mul/64", mul.ID.String())
	require.IsType(t, &protocol.GroupFinish{}, msgs[10])

	require.IsType(t, &protocol.GroupBegin{}, msgs[11])
	require.IsType(t, &protocol.BenchBegin{}, msgs[12])
	skip, ok := msgs[13].(*protocol.BenchSkip)
	require.True(t, ok)
	assert.Equal(t, "io/dma", skip.ID.String())
	require.IsType(t, &protocol.GroupFinish{}, msgs[14])
	require.IsType(t, &protocol.Done{}, msgs[15])
	assert.Positive(t, acc)
}

func TestSkipCarriesReason(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(1))
	NewGroup("io").Skip("dma", "no controller")

	var buf bytes.Buffer
	require.Equal(t, 0, run(std, false, "", WithOutput(&buf), WithSource(simSource())))

	msgs := decodeAll(t, &buf)
	require.Len(t, msgs, 6)
	begin, ok := msgs[2].(*protocol.BenchBegin)
	require.True(t, ok)
	assert.Equal(t, "io/dma", begin.ID.String())
	skip, ok := msgs[3].(*protocol.BenchSkip)
	require.True(t, ok)
	assert.Equal(t, "no controller", skip.Reason)
}

func TestCheckModeRunsBodyOnce(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(5))

	var calls int
	NewGroup("math").Bench("add", func(b *B) {
		calls++
		b.Iter(func() {})
	})

	var buf bytes.Buffer
	require.Equal(t, 0, run(std, true, "", WithOutput(&buf), WithSource(simSource())))
	assert.Equal(t, 1, calls)

	skips := 0
	for _, msg := range decodeAll(t, &buf) {
		switch m := msg.(type) {
		case *protocol.BenchSkip:
			skips++
			assert.Equal(t, "check mode", m.Reason)
		case *protocol.Warmup, *protocol.MeasurementStart, *protocol.MeasurementComplete:
			t.Fatalf("check mode measured: %#v", m)
		}
	}
	assert.Equal(t, 1, skips)
}

func TestFilterSkipsNonMatching(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(2))

	NewGroup("math").
		Bench("add", func(b *B) { b.Iter(func() {}) }).
		Bench("mul", func(b *B) { b.Iter(func() {}) })

	var buf bytes.Buffer
	require.Equal(t, 0, run(std, false, "mul", WithOutput(&buf), WithSource(simSource())))

	var measured, skipped []string
	for _, msg := range decodeAll(t, &buf) {
		switch m := msg.(type) {
		case *protocol.MeasurementComplete:
			measured = append(measured, m.ID.String())
		case *protocol.BenchSkip:
			skipped = append(skipped, m.ID.String())
			assert.Equal(t, "filtered", m.Reason)
		}
	}
	assert.Equal(t, []string{"math/mul"}, measured)
	assert.Equal(t, []string{"math/add"}, skipped)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(2))
	t.Setenv("TELEBENCH_SAMPLE_SIZE", "4")

	NewGroup("math").Bench("add", func(b *B) { b.Iter(func() {}) })

	var buf bytes.Buffer
	require.Equal(t, 0, run(std, false, "", WithOutput(&buf), WithSource(simSource())))

	found := false
	for _, msg := range decodeAll(t, &buf) {
		if m, ok := msg.(*protocol.MeasurementComplete); ok {
			found = true
			assert.Equal(t, 4, m.Config.SampleSize)
			assert.Len(t, m.Values, 4)
		}
	}
	require.True(t, found)
}

func TestBadEnvironmentFailsBeforeStreaming(t *testing.T) {
	swapRegistry(t)
	t.Setenv("TELEBENCH_SAMPLE_SIZE", "many")

	NewGroup("math").Bench("add", func(b *B) { b.Iter(func() {}) })

	var buf bytes.Buffer
	assert.Equal(t, 2, run(std, false, "", WithOutput(&buf), WithSource(simSource())))
	assert.Zero(t, buf.Len())
}

func TestOversizedSampleBufferFailsValidation(t *testing.T) {
	swapRegistry(t)
	cfg := fastConfig(bench.MaxSampleCapacity + 1)
	SetConfig(cfg)

	NewGroup("math").Bench("add", func(b *B) { b.Iter(func() {}) })

	var buf bytes.Buffer
	assert.Equal(t, 2, run(std, false, "", WithOutput(&buf), WithSource(simSource())))
	assert.Zero(t, buf.Len())
}

func TestHaltHookRunsAfterDone(t *testing.T) {
	swapRegistry(t)
	SetConfig(fastConfig(1))
	NewGroup("math").Bench("add", func(b *B) { b.Iter(func() {}) })

	halted := false
	var buf bytes.Buffer
	rc := run(std, false, "", WithOutput(&buf), WithSource(simSource()), WithHalt(func() { halted = true }))
	assert.Equal(t, 0, rc)
	assert.True(t, halted)
}

func TestKeepReturnsItsArgument(t *testing.T) {
	assert.Equal(t, 42, Keep(42))
	assert.Equal(t, "x", Keep("x"))
}

func TestDefaultConfigMatchesProtocol(t *testing.T) {
	assert.Equal(t, protocol.DefaultConfig(), DefaultConfig())
}
