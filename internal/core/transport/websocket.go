package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func init() {
	Default.RegisterDialer("ws", dialWebSocket)
	Default.RegisterDialer("wss", dialWebSocket)
	Default.RegisterListener("ws", listenWebSocket)
}

// wsTransport adapts gorilla's message-oriented connection to the byte
// stream the protocol layer expects. Message boundaries are not preserved:
// a Read may return part of one message, and the residue is served by the
// following Reads.
type wsTransport struct {
	conn    *websocket.Conn
	residue []byte
	writeMu sync.Mutex
	info    string
}

func dialWebSocket(ctx context.Context, u *url.URL) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket %s: %w", u.String(), err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsTransport{conn: conn, info: u.String()}, nil
}

func (t *wsTransport) Read(p []byte) (int, error) {
	for len(t.residue) == 0 {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
			continue
		}
		t.residue = data
	}
	n := copy(p, t.residue)
	t.residue = t.residue[n:]
	return n, nil
}

func (t *wsTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *wsTransport) Kind() Kind {
	return KindWebSocket
}

func (t *wsTransport) Info() string {
	return t.info
}

type wsListener struct {
	srv    *http.Server
	ln     net.Listener
	conns  chan *wsTransport
	closed chan struct{}
	once   sync.Once
}

func listenWebSocket(ctx context.Context, u *url.URL) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: listen websocket %s: %w", u.Host, err)
	}

	l := &wsListener{
		ln:     ln,
		conns:  make(chan *wsTransport, 1),
		closed: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		t := &wsTransport{conn: conn, info: "ws://" + conn.RemoteAddr().String()}
		select {
		case l.conns <- t:
		case <-l.closed:
			_ = conn.Close()
		}
	})
	l.srv = &http.Server{Handler: mux}
	go func() { _ = l.srv.Serve(ln) }()
	return l, nil
}

func (l *wsListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.srv.Close()
}
