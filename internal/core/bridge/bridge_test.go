package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebench/telebench/internal/core/bench"
	"github.com/telebench/telebench/internal/core/clock"
	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/report"
	"github.com/telebench/telebench/internal/core/transport"
)

// pipeFlasher plays the device end in-process: each Flash hands the bridge
// one side of a pipe and parks the other side on the devices channel for the
// test to drive.
type pipeFlasher struct {
	calls     int32
	failFirst bool
	devices   chan transport.Transport
}

func newPipeFlasher() *pipeFlasher {
	return &pipeFlasher{devices: make(chan transport.Transport, 4)}
}

func (f *pipeFlasher) Flash(context.Context, string) (transport.Transport, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failFirst && n == 1 {
		return nil, errors.New("probe wedged")
	}
	bridgeEnd, deviceEnd := transport.Pipe()
	f.devices <- deviceEnd
	return bridgeEnd, nil
}

func startBridge(t *testing.T, cfg Config, flasher *pipeFlasher) (addr string, done <-chan error, stop func()) {
	t.Helper()
	ln, err := transport.Listen(context.Background(), "tcp://127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	srv := New(cfg, flasher, nil)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	return ln.Addr(), errCh, cancel
}

func TestBridgeSplicesBothWays(t *testing.T) {
	flasher := newPipeFlasher()
	addr, done, stop := startBridge(t, Config{}, flasher)
	defer stop()

	host, err := transport.Dial(context.Background(), "tcp://"+addr)
	require.NoError(t, err)

	var device transport.Transport
	select {
	case device = <-flasher.devices:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge never flashed the device")
	}

	// Host to device.
	_, err = io.WriteString(host, "ping\n")
	require.NoError(t, err)
	line, err := bufio.NewReader(device).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)

	// Device to host.
	_, err = io.WriteString(device, "pong\n")
	require.NoError(t, err)
	line, err = bufio.NewReader(host).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "pong\n", line)

	// Host hangup tears the device side down too.
	require.NoError(t, host.Close())
	buf := make([]byte, 1)
	_, err = device.Read(buf)
	assert.Error(t, err)

	stop()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestBridgeChecksToken(t *testing.T) {
	flasher := newPipeFlasher()
	addr, _, stop := startBridge(t, Config{Token: "s3cret"}, flasher)
	defer stop()

	// Wrong token: the session is dropped before any flash.
	host, err := transport.Dial(context.Background(), "tcp://"+addr)
	require.NoError(t, err)
	_, err = io.WriteString(host, "auth nope\n")
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = host.Read(buf)
	assert.Error(t, err, "rejected session must be closed")
	assert.Zero(t, atomic.LoadInt32(&flasher.calls))
	_ = host.Close()

	// Correct token on a fresh connection: the daemon is still serving.
	host, err = transport.Dial(context.Background(), "tcp://"+addr)
	require.NoError(t, err)
	defer host.Close()
	_, err = io.WriteString(host, "auth s3cret\n")
	require.NoError(t, err)

	select {
	case device := <-flasher.devices:
		// Nothing past the preamble may leak into the spliced stream.
		_, err = io.WriteString(host, "first\n")
		require.NoError(t, err)
		line, err := bufio.NewReader(device).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "first\n", line)
		_ = device.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("authenticated session was not flashed")
	}
}

func TestBridgeSurvivesFlashFailure(t *testing.T) {
	flasher := newPipeFlasher()
	flasher.failFirst = true
	addr, _, stop := startBridge(t, Config{}, flasher)
	defer stop()

	host, err := transport.Dial(context.Background(), "tcp://"+addr)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = host.Read(buf)
	assert.Error(t, err, "failed session must be closed")
	_ = host.Close()

	// The daemon accepts the next relay once the flasher recovers.
	host, err = transport.Dial(context.Background(), "tcp://"+addr)
	require.NoError(t, err)
	defer host.Close()

	select {
	case device := <-flasher.devices:
		_ = device.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("bridge stopped serving after a flash failure")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&flasher.calls))
}

type nopBuilder struct{}

func (nopBuilder) Build(context.Context, string, []string) (string, error) {
	return "unused-artifact", nil
}

// TestBridgeCarriesMeasurementSession wires the whole remote path: a relay
// with a RemoteFlasher dials the bridge, the bridge flashes a pipe-backed
// device driven by a real runner, and the measurement stream crosses TCP
// into the relay's JSON store.
func TestBridgeCarriesMeasurementSession(t *testing.T) {
	flasher := newPipeFlasher()
	addr, _, stop := startBridge(t, Config{Token: "lab"}, flasher)
	defer stop()

	runCfg := protocol.Config{
		MeasurementTime: time.Millisecond,
		WarmUpTime:      time.Millisecond,
		SampleSize:      3,
		Nresamples:      100,
	}

	go func() {
		device := <-flasher.devices
		defer device.Close()
		src := clock.NewSimulatedSource(32, 1_000_000_000).WithReadCost(5)
		reg := bench.NewRegistry().SetConfig(runCfg)
		reg.Group("math").Bench("mul", func(b *bench.B) {
			b.Iter(func() { src.Advance(50) })
		})
		_ = bench.NewRunner(reg, clock.MustNew(src), device, nil, nil).Run(context.Background())
	}()

	dir := t.TempDir()
	store := report.NewJSONStore(dir)

	cfg := relay.DefaultConfig()
	cfg.Run = runCfg
	r := relay.New(cfg, nopBuilder{}, relay.NewRemoteFlasher("tcp://"+addr, "lab", nil), store, nil)
	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, relay.StateFinished, r.State())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "one header and one benchmark record")
	assert.Contains(t, lines[1], `"math"`)
	assert.Contains(t, lines[1], `"mul"`)
}

func TestBridgeWithoutFlasher(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "tcp://127.0.0.1:0")
	require.NoError(t, err)
	srv := New(Config{}, nil, nil)
	require.Error(t, srv.Serve(context.Background(), ln))
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("auth abc\nrest"), maxPreamble)
	require.NoError(t, err)
	assert.Equal(t, "auth abc", line)

	_, err = readLine(strings.NewReader(strings.Repeat("a", 300)+"\n"), maxPreamble)
	require.Error(t, err)

	_, err = readLine(strings.NewReader("no newline"), maxPreamble)
	require.ErrorIs(t, err, io.EOF)
}
