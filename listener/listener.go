// Package listener provides the net.Listener wrappers used by the domainwatch HTTP server:
// optional PROXY protocol decoding, TLS / plain HTTP multiplexing on a single port and
// an accept loop that survives per-connection failures.
package listener

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// DefaultPeekTimeout bounds how long a client may stay silent before the first bytes are inspected.
const DefaultPeekTimeout = 10 * time.Second

// connWrapper wraps a net.Conn and reads through the buffered reader that holds the peeked bytes
type connWrapper struct {
	net.Conn
	io.Reader
}

// connWrapper.Read method will read from the io.Reader instead of the net.Conn
func (cw *connWrapper) Read(b []byte) (int, error) {
	return cw.Reader.Read(b)
}

// ProtocolMuxListener wraps net.Listener and inspects the incoming connection to determine the protocol.
// Connections starting with a TLS handshake record are terminated with TLSConfig, everything else is
// handed over as plain TCP. When TLSConfig is nil connections are passed through untouched.
//
// Inspection runs on a goroutine per connection, a client that stays silent only holds its own
// connection and never delays Accept for the others.
type ProtocolMuxListener struct {
	net.Listener
	TLSConfig   *tls.Config
	PeekTimeout time.Duration

	start     sync.Once
	closeOnce sync.Once
	accepted  chan acceptResult
	done      chan struct{}
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func NewProtocolMuxListener(listener net.Listener, tlsConfig *tls.Config) *ProtocolMuxListener {
	return &ProtocolMuxListener{
		Listener:    listener,
		TLSConfig:   tlsConfig,
		PeekTimeout: DefaultPeekTimeout,
		accepted:    make(chan acceptResult),
		done:        make(chan struct{}),
	}
}

// Accept returns the next connection whose protocol has been determined, or the error of a
// connection that was rejected while being inspected.
func (l *ProtocolMuxListener) Accept() (net.Conn, error) {
	if l.TLSConfig == nil {
		rawConnection, err := l.Listener.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting connection: %w", err)
		}
		return rawConnection, nil
	}

	l.start.Do(func() { go l.acceptLoop() })
	select {
	case result := <-l.accepted:
		return result.conn, result.err
	case <-l.done:
		return nil, fmt.Errorf("accepting connection: %w", net.ErrClosed)
	}
}

// Close stops handing out connections and closes the wrapped listener.
func (l *ProtocolMuxListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return l.Listener.Close()
}

func (l *ProtocolMuxListener) acceptLoop() {
	for {
		rawConnection, err := l.Listener.Accept()
		if err != nil {
			l.deliver(acceptResult{err: fmt.Errorf("accepting connection: %w", err)})
			if errors.Is(err, net.ErrClosed) {
				l.closeOnce.Do(func() { close(l.done) })
				return
			}
			continue
		}
		go func() {
			conn, err := l.sniff(rawConnection)
			l.deliver(acceptResult{conn: conn, err: err})
		}()
	}
}

// deliver hands a result to Accept, connections still pending once the listener is closed are dropped.
func (l *ProtocolMuxListener) deliver(result acceptResult) {
	select {
	case l.accepted <- result:
	case <-l.done:
		if result.conn != nil {
			result.conn.Close()
		}
	}
}

// sniff peeks at the first bytes of the connection and completes the TLS handshake when one starts.
func (l *ProtocolMuxListener) sniff(rawConnection net.Conn) (net.Conn, error) {
	timeout := l.PeekTimeout
	if timeout <= 0 {
		timeout = DefaultPeekTimeout
	}

	bufferedReader := bufio.NewReader(rawConnection)

	err := rawConnection.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("setting read deadline for peek: %w", err)
	}

	peekedBytes, err := bufferedReader.Peek(5)

	if err := rawConnection.SetReadDeadline(time.Time{}); err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("clearing read deadline after peek: %w", err)
	}
	if err != nil && err != bufio.ErrBufferFull {
		rawConnection.Close()
		return nil, fmt.Errorf("peeking initial bytes: %w", err)
	}

	wrapped := &connWrapper{
		Conn:   rawConnection,
		Reader: bufferedReader,
	}

	if !isTLSHandshake(peekedBytes) {
		return wrapped, nil
	}

	tlsConn := tls.Server(wrapped, l.TLSConfig)

	if err := rawConnection.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("setting read deadline for handshake: %w", err)
	}

	if err := tlsConn.Handshake(); err != nil {
		rawConnection.SetReadDeadline(time.Time{})
		tlsConn.Close()
		return nil, fmt.Errorf("performing tls handshake: %w", err)
	}

	if err := rawConnection.SetReadDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("clearing read deadline after handshake: %w", err)
	}
	return tlsConn, nil
}

// isTLSHandshake reports whether the bytes start a TLS handshake record
func isTLSHandshake(peeked []byte) bool {
	return len(peeked) >= 2 && peeked[0] == 0x16 && peeked[1] == 0x03
}

// ResilientListener wraps net.Listener so that recoverable accept errors do not stop the server.
// http.Server.Serve returns on the first non-temporary Accept error, a failed TLS handshake from a
// single client must not take the whole service down.
type ResilientListener struct {
	net.Listener
	Logger  *slog.Logger
	OnError func(err error)
}

func NewResilientListener(listenerToWrap net.Listener, logger *slog.Logger) *ResilientListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ResilientListener{Listener: listenerToWrap, Logger: logger}
}

// Accept gracefully handles recoverable errors and keeps accepting until the listener is closed
func (l *ResilientListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}

			l.Logger.Warn("recoverable listener error, connection rejected", "error", err)
			if l.OnError != nil {
				l.OnError(err)
			}
			continue
		}
		return conn, nil
	}
}

// WithProxyProtocol wraps the listener so that connections may carry a PROXY protocol v1/v2 header.
// Connections without a header are accepted as is and keep their socket address.
func WithProxyProtocol(l net.Listener, headerTimeout time.Duration) net.Listener {
	return &proxyproto.Listener{
		Listener:          l,
		ReadHeaderTimeout: headerTimeout,
	}
}

// Options configures the listener chain built by Listen.
type Options struct {
	TLSConfig     *tls.Config
	ProxyProtocol bool
	PeekTimeout   time.Duration
	Logger        *slog.Logger
	OnError       func(err error)
}

// Listen opens a TCP listener on address and wraps it as PROXY protocol -> protocol mux -> resilient.
func Listen(address string, opts Options) (net.Listener, error) {
	rawListener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("setting up listener on %s : %w", address, err)
	}
	return Wrap(rawListener, opts), nil
}

// Wrap applies the listener chain of Listen to an existing listener.
func Wrap(base net.Listener, opts Options) net.Listener {
	var l net.Listener = base
	if opts.ProxyProtocol {
		l = WithProxyProtocol(l, opts.PeekTimeout)
	}
	mux := NewProtocolMuxListener(l, opts.TLSConfig)
	if opts.PeekTimeout > 0 {
		mux.PeekTimeout = opts.PeekTimeout
	}
	resilient := NewResilientListener(mux, opts.Logger)
	resilient.OnError = opts.OnError
	return resilient
}
