// Package bridge is the probe daemon: it accepts one relay connection at a
// time, starts the locally configured flasher, and splices bytes between the
// two until either side closes. Frames pass through untouched; the bridge
// never looks inside the stream.
package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/transport"
	"github.com/telebench/telebench/pkg/concurrent"
	"github.com/telebench/telebench/pkg/generic"
)

// maxPreamble bounds the auth line a connecting relay may send.
const maxPreamble = 256

// copyBufs hands out splice buffers; sessions come and go but the buffers
// stay warm.
var copyBufs = generic.NewPool(func() []byte { return make([]byte, 32<<10) })

var errSessionEnded = errors.New("session ended")

// Config carries the daemon settings.
type Config struct {
	// Endpoint is the listen address, e.g. "tcp://0.0.0.0:7333" or
	// "ws://0.0.0.0:7333/bench".
	Endpoint string
	// Token, when set, must be presented by the relay before the device is
	// flashed. Empty disables the check.
	Token string
}

// Server runs the probe daemon loop.
type Server struct {
	cfg      Config
	flasher  relay.Flasher
	logger   log.Log
	sessions uint64
}

// New builds a Server around the flasher that owns the attached device.
func New(cfg Config, flasher relay.Flasher, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		cfg:     cfg,
		flasher: flasher,
		logger:  logger.Named("bridge"),
	}
}

// Sessions returns how many connections have been served.
func (s *Server) Sessions() uint64 {
	return atomic.LoadUint64(&s.sessions)
}

// Run listens on the configured endpoint and serves until the context ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := transport.Listen(ctx, s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Endpoint, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts and serves connections on ln, which it owns and closes.
// Sessions are strictly sequential; a second relay connecting while one is
// active waits in the accept queue.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	defer ln.Close()
	if s.flasher == nil {
		return errors.New("bridge requires a flasher")
	}
	s.logger.Info("probe bridge listening",
		log.String("addr", ln.Addr()),
		log.Bool("token_required", s.cfg.Token != ""))

	for {
		host, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		atomic.AddUint64(&s.sessions, 1)
		s.serve(ctx, host)
	}
}

func (s *Server) serve(ctx context.Context, host transport.Transport) {
	counted := transport.NewCounted(host)
	defer counted.Close()

	session := uuid.NewString()
	logger := s.logger.With(log.String("session", session))
	logger.Info("relay connected", log.String("transport", host.Info()))

	if s.cfg.Token != "" {
		if err := s.expectToken(counted); err != nil {
			logger.Warn("rejecting relay", log.Error(err))
			return
		}
	}

	dev, err := s.flasher.Flash(ctx, "")
	if err != nil {
		logger.Error("flash failed", log.Error(err))
		return
	}

	splice(ctx, counted, dev)
	logger.Info("session closed",
		log.Uint64("bytes_to_host", counted.BytesWritten()),
		log.Uint64("bytes_from_host", counted.BytesRead()))
}

// expectToken reads the "auth <token>" line byte by byte. Reading exactly up
// to the newline matters: anything consumed past it would be stolen from the
// measurement stream.
func (s *Server) expectToken(r io.Reader) error {
	line, err := readLine(r, maxPreamble)
	if err != nil {
		return fmt.Errorf("read auth preamble: %w", err)
	}
	want := "auth " + s.cfg.Token
	if subtle.ConstantTimeCompare([]byte(line), []byte(want)) != 1 {
		return errors.New("bad token")
	}
	return nil
}

func readLine(r io.Reader, limit int) (string, error) {
	buf := make([]byte, 0, 64)
	b := make([]byte, 1)
	for len(buf) < limit {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", fmt.Errorf("auth preamble exceeds %d bytes", limit)
}

// splice copies in both directions until one side closes or the context
// ends, then tears both transports down so every goroutine drains.
func splice(ctx context.Context, host, dev transport.Transport) {
	g, gctx := concurrent.WithContext(ctx)
	g.Go(func(context.Context) error {
		pumpBytes(dev, host)
		return errSessionEnded
	})
	g.Go(func(context.Context) error {
		pumpBytes(host, dev)
		return errSessionEnded
	})
	g.Go(func(context.Context) error {
		<-gctx.Done()
		_ = host.Close()
		_ = dev.Close()
		return nil
	})
	_ = g.Wait()
}

func pumpBytes(dst io.Writer, src io.Reader) {
	buf := copyBufs.Get()
	defer copyBufs.Put(buf)
	_, _ = io.CopyBuffer(dst, src, buf)
}
