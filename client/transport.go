package client

import (
	"context"
	stdtls "crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

const protoHTTP11 = "http/1.1"

// newTraversalTransport returns the HTTP/1.1-only transport used for the
// three GETs, with standard Go TLS. A nil rootCAs means the system pool.
func newTraversalTransport(dialer proxy.ContextDialer, rootCAs *x509.CertPool) *http.Transport {
	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &stdtls.Config{RootCAs: rootCAs},
		TLSHandshakeTimeout:   8 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Accept-Encoding is set explicitly and decoded in readBody.
		DisableCompression: true,
		ForceAttemptHTTP2:  false,
		// A non-nil empty map disables the bundled HTTP/2 upgrade. Strict H1.1.
		TLSNextProto: map[string]func(string, *stdtls.Conn) http.RoundTripper{},
	}
}

// submitTransport prefers HTTP/2 the way a browser does. The first https
// request to a host performs a Chrome uTLS handshake offering h2 and
// http/1.1, and the protocol the server picks frames that connection and
// every later request to the host. http URLs use HTTP/1.1.
type submitTransport struct {
	dialer  proxy.ContextDialer
	rootCAs *x509.CertPool

	h2 *http2.Transport
	h1 *http.Transport

	mu sync.Mutex
	// protos maps host:port to the ALPN protocol the server picked.
	protos map[string]string
	// pending holds handshaken connections not yet claimed by h1 or h2.
	pending map[string]net.Conn
}

func newSubmitTransport(dialer proxy.ContextDialer, rootCAs *x509.CertPool) *submitTransport {
	t := &submitTransport{
		dialer:  dialer,
		rootCAs: rootCAs,
		protos:  make(map[string]string),
		pending: make(map[string]net.Conn),
	}
	t.h2 = &http2.Transport{
		DisableCompression: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *stdtls.Config) (net.Conn, error) {
			return t.claim(ctx, network, addr, http2.NextProtoTLS)
		},
	}
	t.h1 = &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.claim(ctx, network, addr, protoHTTP11)
		},
		IdleConnTimeout:    30 * time.Second,
		DisableCompression: true,
		TLSNextProto:       map[string]func(string, *stdtls.Conn) http.RoundTripper{},
	}
	return t
}

func (t *submitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	proto, err := t.negotiate(req.Context(), hostPort(req.URL))
	if err != nil {
		return nil, err
	}
	if proto == http2.NextProtoTLS {
		return t.h2.RoundTrip(req)
	}
	return t.h1.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach both
// transports and any handshaken connection nobody claimed.
func (t *submitTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()

	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, conn := range t.pending {
		conn.Close()
		delete(t.pending, addr)
	}
}

// negotiate returns the framing for addr, handshaking once if the host was
// not seen yet. The handshaken connection is parked for claim.
func (t *submitTransport) negotiate(ctx context.Context, addr string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.protos[addr]; ok {
		return p, nil
	}

	conn, p, err := t.dialChrome(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	t.protos[addr] = p
	t.pending[addr] = conn
	return p, nil
}

// claim hands the parked connection for addr to the transport framing
// proto, or dials a new one. A new connection that lands on another
// protocol is closed and the host is re-routed for the next request.
func (t *submitTransport) claim(ctx context.Context, network, addr, proto string) (net.Conn, error) {
	t.mu.Lock()
	conn, ok := t.pending[addr]
	delete(t.pending, addr)
	t.mu.Unlock()
	if ok {
		return conn, nil
	}

	conn, got, err := t.dialChrome(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if got != proto {
		conn.Close()
		t.mu.Lock()
		t.protos[addr] = got
		t.mu.Unlock()
		return nil, fmt.Errorf("%s negotiated %s, want %s: %w", addr, got, proto, errNotNegotiated)
	}
	return conn, nil
}

// dialChrome opens a TCP connection and performs a Chrome-fingerprinted TLS
// handshake. HelloChrome_Auto offers h2 and http/1.1 in ALPN. The returned
// protocol is h2 or http/1.1; a server without ALPN counts as http/1.1.
func (t *submitTransport) dialChrome(ctx context.Context, network, addr string) (net.Conn, string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", err
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, "", err
	}

	uConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		RootCAs:    t.rootCAs,
	}, utls.HelloChrome_Auto)

	if err := uConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("utls handshake with %s: %w", host, err)
	}

	if uConn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		return uConn, http2.NextProtoTLS, nil
	}
	return uConn, protoHTTP11, nil
}

// hostPort is the dial address both transports derive for an https URL.
func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
