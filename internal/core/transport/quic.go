package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"time"

	"github.com/quic-go/quic-go"
)

// alpnProtocol identifies the measurement stream during the QUIC handshake.
const alpnProtocol = "telebench/1"

func init() {
	Default.RegisterDialer("quic", dialQUIC)
	Default.RegisterListener("quic", listenQUIC)
}

func defaultQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// quicTransport carries the protocol stream over a single bidirectional QUIC
// stream. The accepting side opens the stream, because the device speaks
// first and its hello frame is what materializes the stream at the dialer.
type quicTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
	info   string
}

func dialQUIC(ctx context.Context, u *url.URL) (Transport, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
	}
	conn, err := quic.DialAddr(ctx, u.Host, tlsConf, defaultQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial quic %s: %w", u.Host, err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("transport: accept quic stream from %s: %w", u.Host, err)
	}
	return &quicTransport{conn: conn, stream: stream, info: "quic://" + u.Host}, nil
}

func (t *quicTransport) Read(p []byte) (int, error) {
	return t.stream.Read(p)
}

func (t *quicTransport) Write(p []byte) (int, error) {
	return t.stream.Write(p)
}

func (t *quicTransport) Close() error {
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "closed")
}

func (t *quicTransport) Kind() Kind {
	return KindQUIC
}

func (t *quicTransport) Info() string {
	return t.info
}

type quicListener struct {
	ln *quic.Listener
}

func listenQUIC(ctx context.Context, u *url.URL) (Listener, error) {
	ln, err := quic.ListenAddr(u.Host, generateTLSConfig(), defaultQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen quic %s: %w", u.Host, err)
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Transport, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept quic: %w", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("transport: open quic stream: %w", err)
	}
	return &quicTransport{conn: conn, stream: stream, info: "quic://" + conn.RemoteAddr().String()}, nil
}

func (l *quicListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *quicListener) Close() error {
	return l.ln.Close()
}

// generateTLSConfig builds a self-signed certificate for the listener side.
// The link carries benchmark measurements between machines the operator
// already controls, so certificate pinning is not worth the setup cost.
func generateTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"telebench"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{alpnProtocol},
	}
}
