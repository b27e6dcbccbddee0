package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// newProbeTransport returns the transport used by the HTTP probes.
// TLS connections use a Chrome client hello so that sites serve what a browser would see.
// Certificate validation is skipped, it is the job of the TLS probe.
func newProbeTransport(dial dialFunc) *http.Transport {
	transport := &http.Transport{
		DialContext:        dial,
		DisableCompression: true,
		DisableKeepAlives:  true,
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		uConn, err := chromeHandshake(ctx, tcpConn, serverName(addr), []string{"http/1.1"})
		if err != nil {
			tcpConn.Close()
			return nil, err
		}
		return uConn, nil
	}
	return transport
}

// chromeHandshake performs a TLS handshake mimicking Chrome.
// When alpn is set it replaces the ALPN protocols Chrome would offer.
func chromeHandshake(ctx context.Context, conn net.Conn, sni string, alpn []string) (*utls.UConn, error) {
	uConn := utls.UClient(conn, &utls.Config{
		ServerName:         sni,
		InsecureSkipVerify: true,
	}, utls.HelloChrome_Auto)

	if err := uConn.BuildHandshakeState(); err != nil {
		return nil, fmt.Errorf("building handshake state : %w", err)
	}

	if len(alpn) > 0 {
		// HelloChrome_Auto ignores Config.NextProtos and offers h2,
		// the extension has to be rewritten before the handshake.
		foundALPN := false
		for _, ext := range uConn.Extensions {
			if alpnExt, ok := ext.(*utls.ALPNExtension); ok {
				alpnExt.AlpnProtocols = alpn
				foundALPN = true
				break
			}
		}
		if !foundALPN {
			return nil, errors.New("could not find ALPNExtension")
		}
	}

	if err := uConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("performing tls handshake : %w", err)
	}
	return uConn, nil
}

func serverName(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
