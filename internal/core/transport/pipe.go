package transport

import "net"

// Pipe returns both ends of an in-memory transport, for tests and for
// running device and relay inside one process.
func Pipe() (host, device Transport) {
	hc, dc := net.Pipe()
	return &pipeTransport{conn: hc, info: "pipe:host"},
		&pipeTransport{conn: dc, info: "pipe:device"}
}

type pipeTransport struct {
	conn net.Conn
	info string
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *pipeTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *pipeTransport) Close() error {
	return t.conn.Close()
}

func (t *pipeTransport) Kind() Kind {
	return KindPipe
}

func (t *pipeTransport) Info() string {
	return t.info
}
