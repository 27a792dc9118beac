package transport

import (
	"context"
	"io"
	"net/url"
	"os"
)

func init() {
	Default.RegisterDialer("stdio", func(context.Context, *url.URL) (Transport, error) {
		return Stdio(), nil
	})
}

// stdioTransport joins a read stream and a write stream into one transport.
// It carries the child-process case, where a flasher owns the runner's pipes,
// and the runner's own stdin/stdout when it is launched directly.
type stdioTransport struct {
	r       io.Reader
	w       io.Writer
	closers []io.Closer
	info    string
}

// NewStdio builds a transport from separate read and write streams. The
// closers, if any, are closed with the transport, in order.
func NewStdio(r io.Reader, w io.Writer, info string, closers ...io.Closer) Transport {
	return &stdioTransport{r: r, w: w, info: info, closers: closers}
}

// Stdio returns the process's own stdin/stdout as a transport. Nothing else
// may write to stdout while it is in use; logs belong on stderr.
func Stdio() Transport {
	return NewStdio(os.Stdin, os.Stdout, "stdio")
}

func (t *stdioTransport) Read(p []byte) (int, error) {
	return t.r.Read(p)
}

func (t *stdioTransport) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

func (t *stdioTransport) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *stdioTransport) Kind() Kind {
	return KindStdio
}

func (t *stdioTransport) Info() string {
	return t.info
}
