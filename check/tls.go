package check

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
	utls "github.com/refraction-networking/utls"
)

// ExpirationLayout formats certificate expiry dates in reports.
const ExpirationLayout = "2006-01-02 15:04:05"

var probedVersions = []struct {
	version uint16
	name    string
}{
	{utls.VersionTLS12, "TLSv1.2"},
	{utls.VersionTLS13, "TLSv1.3"},
}

// probeTLS inspects the certificate served on port 443 and the TLS versions the server accepts.
func (c *Checker) probeTLS(ctx context.Context, name string) domain.SSLResult {
	result := domain.SSLResult{
		CertificateChain: []string{},
		TLSVersions:      []string{},
	}
	addr := net.JoinHostPort(name, "443")

	conn, err := c.dialContext(ctx, "tcp", addr)
	if err != nil {
		result.SSLError = fmt.Sprintf("connecting to %s : %v", addr, err)
		return result
	}
	defer conn.Close()

	uConn, err := chromeHandshake(ctx, conn, name, nil)
	if err != nil {
		result.SSLError = err.Error()
		return result
	}

	peers := uConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		result.SSLError = "server sent no certificate"
		return result
	}

	leaf := peers[0]
	result.CertificateIssuer = leaf.Issuer.CommonName
	if result.CertificateIssuer == "" {
		result.CertificateIssuer = leaf.Issuer.String()
	}
	result.CertificateExpiration = leaf.NotAfter.UTC().Format(ExpirationLayout)
	for _, cert := range peers {
		subject := cert.Subject.CommonName
		if subject == "" {
			subject = cert.Subject.String()
		}
		result.CertificateChain = append(result.CertificateChain, subject)
	}

	if err := c.verifyChain(name, peers); err != nil {
		result.SSLError = err.Error()
	} else {
		result.CertificateValid = true
	}

	result.TLSVersions = c.supportedVersions(ctx, name, addr)
	return result
}

// verifyChain validates the served chain for name against the configured roots.
func (c *Checker) verifyChain(name string, peers []*x509.Certificate) error {
	intermediates := x509.NewCertPool()
	for _, cert := range peers[1:] {
		intermediates.AddCert(cert)
	}
	_, err := peers[0].Verify(x509.VerifyOptions{
		DNSName:       name,
		Roots:         c.RootCAs,
		Intermediates: intermediates,
		CurrentTime:   c.now(),
	})
	if err != nil {
		return fmt.Errorf("verifying certificate : %w", err)
	}
	return nil
}

// supportedVersions completes one handshake per TLS version pinned as both minimum and maximum.
func (c *Checker) supportedVersions(ctx context.Context, name, addr string) []string {
	versions := []string{}
	for _, probe := range probedVersions {
		conn, err := c.dialContext(ctx, "tcp", addr)
		if err != nil {
			continue
		}
		uConn := utls.UClient(conn, &utls.Config{
			ServerName:         name,
			InsecureSkipVerify: true,
			MinVersion:         probe.version,
			MaxVersion:         probe.version,
		}, utls.HelloGolang)
		if err := uConn.HandshakeContext(ctx); err == nil && uConn.ConnectionState().Version == probe.version {
			versions = append(versions, probe.name)
		}
		conn.Close()
	}
	return versions
}

func sslRecommendations(result domain.SSLResult) []string {
	var recommendations []string
	if !result.CertificateValid {
		recommendations = append(recommendations,
			"The TLS certificate could not be validated. Serve a valid, unexpired certificate matching the domain.")
	}
	if len(result.TLSVersions) > 0 && !containsFold(result.TLSVersions, "TLSv1.3") {
		recommendations = append(recommendations, "Enable TLS 1.3 on the web server.")
	}
	return recommendations
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
