// Package transport models the byte-stream link between a device runner and
// the host relay. Every implementation is an opaque, ordered, bidirectional
// byte channel; framing and message semantics belong to the protocol layer,
// never to the transport.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/telebench/telebench/internal/core/observability/log"
)

// Kind names a transport implementation.
type Kind string

const (
	KindStdio     Kind = "stdio"
	KindPipe      Kind = "pipe"
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
	KindQUIC      Kind = "quic"
)

// Transport is an open byte stream to one peer. Reads and writes are ordered
// and uninterpreted.
type Transport interface {
	io.ReadWriteCloser

	Kind() Kind
	// Info describes the endpoint for logs and error messages.
	Info() string
}

// Listener accepts inbound transports, one per connecting peer.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Addr() string
	Close() error
}

// Dialer opens an outbound transport from a parsed endpoint URL.
type Dialer func(ctx context.Context, u *url.URL) (Transport, error)

// ListenerFactory opens a listener on a parsed endpoint URL.
type ListenerFactory func(ctx context.Context, u *url.URL) (Listener, error)

// Registry maps URL schemes to transport implementations. Implementations
// register themselves; callers resolve endpoints like "tcp://host:port" or
// "ws://host:port/path" without knowing which package serves them.
type Registry struct {
	mu        sync.RWMutex
	dialers   map[string]Dialer
	listeners map[string]ListenerFactory
	logger    log.Log
}

func NewRegistry(logger log.Log) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		dialers:   make(map[string]Dialer),
		listeners: make(map[string]ListenerFactory),
		logger:    logger.With(log.String("component", "transport_registry")),
	}
}

// RegisterDialer makes a scheme dialable through this registry.
func (r *Registry) RegisterDialer(scheme string, d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[scheme] = d
}

// RegisterListener makes a scheme listenable through this registry.
func (r *Registry) RegisterListener(scheme string, f ListenerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[scheme] = f
}

// Dial resolves the endpoint's scheme and opens an outbound transport.
func (r *Registry) Dial(ctx context.Context, endpoint string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint %q: %w", endpoint, err)
	}
	r.mu.RLock()
	d, ok := r.dialers[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: no dialer for scheme %q (known: %s)",
			u.Scheme, strings.Join(r.DialSchemes(), ", "))
	}
	r.logger.Debug("dialing endpoint", log.String("endpoint", endpoint))
	return d(ctx, u)
}

// Listen resolves the endpoint's scheme and opens a listener.
func (r *Registry) Listen(ctx context.Context, endpoint string) (Listener, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint %q: %w", endpoint, err)
	}
	r.mu.RLock()
	f, ok := r.listeners[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: no listener for scheme %q (known: %s)",
			u.Scheme, strings.Join(r.ListenSchemes(), ", "))
	}
	r.logger.Debug("listening on endpoint", log.String("endpoint", endpoint))
	return f(ctx, u)
}

// DialSchemes returns the registered dialable schemes, sorted.
func (r *Registry) DialSchemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dialers))
	for s := range r.dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ListenSchemes returns the registered listenable schemes, sorted.
func (r *Registry) ListenSchemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.listeners))
	for s := range r.listeners {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Default is the process-wide registry. Implementations register themselves
// in their init functions.
var Default = NewRegistry(nil)

// Dial opens an outbound transport through the default registry.
func Dial(ctx context.Context, endpoint string) (Transport, error) {
	return Default.Dial(ctx, endpoint)
}

// Listen opens a listener through the default registry.
func Listen(ctx context.Context, endpoint string) (Listener, error) {
	return Default.Listen(ctx, endpoint)
}

// Counted wraps a transport with byte counters for run diagnostics.
type Counted struct {
	inner        Transport
	bytesRead    uint64
	bytesWritten uint64
}

func NewCounted(t Transport) *Counted {
	return &Counted{inner: t}
}

func (c *Counted) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	atomic.AddUint64(&c.bytesRead, uint64(n))
	return n, err
}

func (c *Counted) Write(p []byte) (int, error) {
	n, err := c.inner.Write(p)
	atomic.AddUint64(&c.bytesWritten, uint64(n))
	return n, err
}

func (c *Counted) Close() error {
	return c.inner.Close()
}

func (c *Counted) Kind() Kind {
	return c.inner.Kind()
}

func (c *Counted) Info() string {
	return c.inner.Info()
}

func (c *Counted) BytesRead() uint64 {
	return atomic.LoadUint64(&c.bytesRead)
}

func (c *Counted) BytesWritten() uint64 {
	return atomic.LoadUint64(&c.bytesWritten)
}

// Logged traces every read and write at debug level. zap discards the calls
// when debug is off, so the wrapper is safe to leave on.
type Logged struct {
	inner  Transport
	logger log.Log
}

func WithLogging(t Transport, logger log.Log) *Logged {
	if logger == nil {
		logger = log.Nop()
	}
	return &Logged{inner: t, logger: logger.With(log.String("transport", t.Info()))}
}

func (l *Logged) Read(p []byte) (int, error) {
	n, err := l.inner.Read(p)
	if err != nil {
		l.logger.Debug("read", log.Int("bytes", n), log.Error(err))
	} else {
		l.logger.Debug("read", log.Int("bytes", n))
	}
	return n, err
}

func (l *Logged) Write(p []byte) (int, error) {
	n, err := l.inner.Write(p)
	if err != nil {
		l.logger.Debug("write", log.Int("bytes", n), log.Error(err))
	} else {
		l.logger.Debug("write", log.Int("bytes", n))
	}
	return n, err
}

func (l *Logged) Close() error {
	l.logger.Debug("close")
	return l.inner.Close()
}

func (l *Logged) Kind() Kind {
	return l.inner.Kind()
}

func (l *Logged) Info() string {
	return l.inner.Info()
}
