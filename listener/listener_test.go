package listener

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// testCertificate borrows the self-signed certificate of an httptest TLS server.
// It is valid for 127.0.0.1 and example.com.
func testCertificate(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())
	return ts.TLS.Certificates[0], roots
}

// serveWrapped serves handler over the full listener chain and returns the listening address.
func serveWrapped(t *testing.T, opts Options, handler http.Handler) string {
	t.Helper()
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener : %v", err)
	}

	server := &http.Server{Handler: handler}
	go server.Serve(Wrap(base, opts))
	t.Cleanup(func() { server.Close() })
	return base.Addr().String()
}

func schemeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		scheme := "http"
		if req.TLS != nil {
			scheme = "https"
		}
		fmt.Fprintf(w, "%s %s", scheme, req.RemoteAddr)
	})
}

func TestConnWrapper_ReadDelegates(t *testing.T) {
	read, write := net.Pipe()
	defer read.Close()

	want := []byte("hello, domainwatch")
	go func() {
		defer write.Close()
		write.Write(want)
	}()

	cw := &connWrapper{Conn: read, Reader: bufio.NewReader(read)}
	got, err := io.ReadAll(cw)
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, got)
	}
}

func TestIsTLSHandshake(t *testing.T) {
	tests := []struct {
		name   string
		peeked []byte
		want   bool
	}{
		{name: "should detect a client hello record", peeked: []byte{0x16, 0x03, 0x01, 0x02, 0x00}, want: true},
		{name: "should reject an http request line", peeked: []byte("GET /"), want: false},
		{name: "should reject short input", peeked: []byte{0x16}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTLSHandshake(tt.peeked); got != tt.want {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", tt.want, got)
			}
		})
	}
}

func TestWrap_ServesHTTPAndHTTPS(t *testing.T) {
	cert, roots := testCertificate(t)
	addr := serveWrapped(t, Options{
		TLSConfig:   &tls.Config{Certificates: []tls.Certificate{cert}},
		PeekTimeout: time.Second,
	}, schemeHandler())

	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}},
	}

	for _, scheme := range []string{"http", "https"} {
		t.Run("should serve "+scheme+" on the shared port", func(t *testing.T) {
			resp, err := client.Get(scheme + "://" + addr + "/healthz")
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if !strings.HasPrefix(string(body), scheme+" 127.0.0.1:") {
				t.Fatalf("\nwanted:\n%s from 127.0.0.1\ngot:\n%s", scheme, body)
			}
		})
	}
}

func TestWrap_SilentClientDoesNotBlockOthers(t *testing.T) {
	cert, roots := testCertificate(t)
	addr := serveWrapped(t, Options{
		TLSConfig:   &tls.Config{Certificates: []tls.Certificate{cert}},
		PeekTimeout: 3 * time.Second,
	}, schemeHandler())

	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("client failed to dial: %v", err)
	}
	defer idle.Close()
	time.Sleep(50 * time.Millisecond)

	client := &http.Client{
		Timeout:   time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}},
	}
	for _, scheme := range []string{"http", "https"} {
		t.Run("should serve "+scheme+" while another connection is silent", func(t *testing.T) {
			start := time.Now()
			resp, err := client.Get(scheme + "://" + addr + "/")
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			resp.Body.Close()

			if elapsed := time.Since(start); elapsed > time.Second {
				t.Fatalf("\nwanted:\nserved within 1s\ngot:\n%v", elapsed)
			}
		})
	}
}

func TestProtocolMuxListener_Close(t *testing.T) {
	cert, _ := testCertificate(t)
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener : %v", err)
	}
	mux := NewProtocolMuxListener(base, &tls.Config{Certificates: []tls.Certificate{cert}})

	errs := make(chan error, 1)
	go func() {
		_, err := mux.Accept()
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	mux.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", net.ErrClosed, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("\nwanted:\nAccept to return\ngot:\ntimeout")
	}
}

func TestWrap_ReportsRejectedConnections(t *testing.T) {
	cert, _ := testCertificate(t)

	newServer := func(t *testing.T) (string, chan error) {
		reported := make(chan error, 4)
		addr := serveWrapped(t, Options{
			TLSConfig:   &tls.Config{Certificates: []tls.Certificate{cert}},
			PeekTimeout: 200 * time.Millisecond,
			OnError:     func(err error) { reported <- err },
		}, schemeHandler())
		return addr, reported
	}

	waitFor := func(t *testing.T, reported chan error, want string) {
		t.Helper()
		select {
		case err := <-reported:
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("\nwanted:\nerror containing %q\ngot:\n%v", want, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("\nwanted:\nreported error\ngot:\ntimeout")
		}
	}

	t.Run("should time out a silent client", func(t *testing.T) {
		addr, reported := newServer(t)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		waitFor(t, reported, "peeking initial bytes")
	})

	t.Run("should report a failed tls handshake and keep serving", func(t *testing.T) {
		addr, reported := newServer(t)
		_, err := tls.Dial("tcp", addr, &tls.Config{RootCAs: x509.NewCertPool(), ServerName: "example.com"})
		if err == nil {
			t.Fatalf("\nwanted:\nhandshake error\ngot:\nnil")
		}
		waitFor(t, reported, "performing tls handshake")

		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		resp.Body.Close()
	})

	t.Run("should report an incomplete initial read", func(t *testing.T) {
		addr, reported := newServer(t)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		conn.Write([]byte{0x16, 0x03})
		conn.Close()

		waitFor(t, reported, "peeking initial bytes")
	})
}

func TestProtocolMuxListener_WithoutTLS(t *testing.T) {
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener : %v", err)
	}
	defer base.Close()

	mux := NewProtocolMuxListener(base, nil)
	go func() {
		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte{0x16, 0x03, 0x01})
	}()

	conn, err := mux.Accept()
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	defer conn.Close()

	if _, ok := conn.(*tls.Conn); ok {
		t.Fatalf("\nwanted:\nplain connection\ngot:\n%T", conn)
	}
	got := make([]byte, 3)
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("reading: %v", err)
	}
}

type stubListener struct {
	accept func() (net.Conn, error)
}

func (s *stubListener) Accept() (net.Conn, error) { return s.accept() }
func (s *stubListener) Close() error              { return nil }
func (s *stubListener) Addr() net.Addr            { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestResilientListener(t *testing.T) {
	t.Run("should keep accepting after a recoverable error", func(t *testing.T) {
		var calls atomic.Int32
		stub := &stubListener{accept: func() (net.Conn, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("too many open files")
			}
			server, client := net.Pipe()
			client.Close()
			return server, nil
		}}

		var logs bytes.Buffer
		resilient := NewResilientListener(stub, slog.New(slog.NewTextHandler(&logs, nil)))
		conn, err := resilient.Accept()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		conn.Close()

		if got := calls.Load(); got != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", got)
		}
		if !strings.Contains(logs.String(), "too many open files") {
			t.Fatalf("\nwanted:\nlogged error\ngot:\n%q", logs.String())
		}
	})

	t.Run("should stop once the listener is closed", func(t *testing.T) {
		var calls atomic.Int32
		stub := &stubListener{accept: func() (net.Conn, error) {
			calls.Add(1)
			return nil, fmt.Errorf("accepting connection: %w", net.ErrClosed)
		}}

		_, err := NewResilientListener(stub, nil).Accept()
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", net.ErrClosed, err)
		}
		if got := calls.Load(); got != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got)
		}
	})
}

func TestWrap_ProxyProtocol(t *testing.T) {
	addr := serveWrapped(t, Options{ProxyProtocol: true, PeekTimeout: time.Second}, schemeHandler())
	clientAddr := &net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 51000}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("client failed to dial: %v", err)
	}
	defer conn.Close()

	header := proxyproto.HeaderProxyFromAddrs(2, clientAddr, conn.RemoteAddr())
	if _, err := header.WriteTo(conn); err != nil {
		t.Fatalf("writing proxy header: %v", err)
	}
	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "http 203.0.113.7:51000" {
		t.Fatalf("\nwanted:\nhttp 203.0.113.7:51000\ngot:\n%s", body)
	}
}
