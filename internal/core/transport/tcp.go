package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

func init() {
	Default.RegisterDialer("tcp", dialTCP)
	Default.RegisterListener("tcp", listenTCP)
}

type tcpTransport struct {
	conn net.Conn
	info string
}

func dialTCP(ctx context.Context, u *url.URL) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", u.Host, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Frames are small and latency-sensitive; never batch them.
		_ = tc.SetNoDelay(true)
	}
	return &tcpTransport{conn: conn, info: "tcp://" + conn.RemoteAddr().String()}, nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) Kind() Kind {
	return KindTCP
}

func (t *tcpTransport) Info() string {
	return t.info
}

type tcpListener struct {
	ln net.Listener
}

func listenTCP(ctx context.Context, u *url.URL) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", u.Host, err)
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Transport, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.ln.Close()
		case <-done:
		}
	}()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: accept tcp: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &tcpTransport{conn: conn, info: "tcp://" + conn.RemoteAddr().String()}, nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}
