package check

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestProbeTLS(t *testing.T) {
	t.Run("should validate the certificate against the configured roots", func(t *testing.T) {
		site := startSite(t, landingHandler())
		checker := newTestChecker(t, WithResolver("127.0.0.1:1"), WithWaypoints(site.waypoints()), WithRootCAs(site.roots))

		result := checker.probeTLS(context.Background(), "example.com")
		if !result.CertificateValid || result.SSLError != "" {
			t.Fatalf("\nwanted:\nvalid certificate\ngot:\n%+v", result)
		}
		if result.CertificateIssuer == "" || len(result.CertificateChain) == 0 {
			t.Errorf("\nwanted:\nissuer and chain\ngot:\n%+v", result)
		}

		expiry, err := time.Parse(ExpirationLayout, result.CertificateExpiration)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if want := site.https.Certificate().NotAfter.UTC().Truncate(time.Second); !expiry.Equal(want) {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", want, expiry)
		}
	})

	t.Run("should report an untrusted certificate", func(t *testing.T) {
		site := startSite(t, landingHandler())
		checker := newTestChecker(t, WithResolver("127.0.0.1:1"), WithWaypoints(site.waypoints()))

		result := checker.probeTLS(context.Background(), "example.com")
		if result.CertificateValid || result.SSLError == "" {
			t.Fatalf("\nwanted:\ninvalid certificate\ngot:\n%+v", result)
		}
		if len(result.TLSVersions) == 0 {
			t.Errorf("\nwanted:\nprobed tls versions\ngot:\nnone")
		}

		recommendations := sslRecommendations(result)
		if len(recommendations) == 0 {
			t.Errorf("\nwanted:\ncertificate recommendation\ngot:\nnone")
		}
	})

	t.Run("should report a certificate for another name", func(t *testing.T) {
		site := startSite(t, landingHandler())
		waypoints := map[string]string{"other.org:443": site.https.Listener.Addr().String()}
		checker := newTestChecker(t, WithResolver("127.0.0.1:1"), WithWaypoints(waypoints), WithRootCAs(site.roots))

		result := checker.probeTLS(context.Background(), "other.org")
		if result.CertificateValid {
			t.Fatalf("\nwanted:\ninvalid certificate\ngot:\n%+v", result)
		}
	})

	t.Run("should report connection failures", func(t *testing.T) {
		checker := newTestChecker(t,
			WithResolver("127.0.0.1:1"),
			WithWaypoints(map[string]string{"example.com:443": "127.0.0.1:1"}),
		)

		result := checker.probeTLS(context.Background(), "example.com")
		if !strings.HasPrefix(result.SSLError, "connecting to example.com:443") {
			t.Fatalf("\nwanted:\nconnection error\ngot:\n%q", result.SSLError)
		}
	})
}

func TestProbeHeaders(t *testing.T) {
	t.Run("should score headers and keep the decoded page", func(t *testing.T) {
		site := startSite(t, landingHandler())
		checker := newTestChecker(t, WithResolver("127.0.0.1:1"), WithWaypoints(site.waypoints()))

		result, landing := checker.probeHeaders(context.Background(), "example.com")
		if result.Error != "" {
			t.Fatalf("\nwanted:\nno error\ngot:\n%s", result.Error)
		}
		if !result.ContentSecurityPolicy || !result.XContentTypeOptions || !result.XFrameOptions {
			t.Errorf("\nwanted:\ncsp, nosniff and frame options\ngot:\n%+v", result)
		}
		if result.XXSSProtection || result.PermissionsPolicy || result.ReferrerPolicy {
			t.Errorf("\nwanted:\nmissing xss, permissions and referrer policy\ngot:\n%+v", result)
		}
		if result.SecurityScore != 3 {
			t.Errorf("\nwanted:\n3\ngot:\n%d", result.SecurityScore)
		}
		if !strings.Contains(result.Evidence, "Content-Security-Policy") {
			t.Errorf("\nwanted:\nevidence with headers\ngot:\n%s", result.Evidence)
		}
		if landing == nil || string(landing.Body) != landingPage {
			t.Fatalf("\nwanted:\ndecoded landing page\ngot:\n%v", landing)
		}
		if len(result.Recommendations) != 3 {
			t.Errorf("\nwanted:\n3 recommendations\ngot:\n%v", result.Recommendations)
		}
	})

	t.Run("should fall back to http without redirect", func(t *testing.T) {
		plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Strict-Transport-Security", "max-age=600")
			w.Write([]byte("<html><body>plain</body></html>"))
		}))
		defer plain.Close()

		checker := newTestChecker(t,
			WithResolver("127.0.0.1:1"),
			WithWaypoints(map[string]string{
				"example.com:443": "127.0.0.1:1",
				"example.com:80":  plain.Listener.Addr().String(),
			}),
		)

		result, landing := checker.probeHeaders(context.Background(), "example.com")
		if landing == nil || result.Error != "" {
			t.Fatalf("\nwanted:\nhttp landing page\ngot:\n%+v", result)
		}
		if result.HSTSSupported {
			t.Errorf("\nwanted:\nhsts ignored over http\ngot:\n%+v", result)
		}
		if result.RedirectsToHTTPS || result.SecurityScore != 1 {
			t.Errorf("\nwanted:\nno redirect and score 1\ngot:\n%+v", result)
		}

		for _, want := range []string{
			"Add a Strict-Transport-Security header to enforce HTTPS connections.",
			"Redirect plain HTTP requests to HTTPS.",
		} {
			if !slices.Contains(result.Recommendations, want) {
				t.Errorf("\nwanted:\n%s\ngot:\n%v", want, result.Recommendations)
			}
		}
	})

	t.Run("should record unreachable sites", func(t *testing.T) {
		checker := newTestChecker(t,
			WithResolver("127.0.0.1:1"),
			WithWaypoints(map[string]string{
				"example.com:443": "127.0.0.1:1",
				"example.com:80":  "127.0.0.1:1",
			}),
		)

		result, landing := checker.probeHeaders(context.Background(), "example.com")
		if landing != nil || result.Error == "" {
			t.Fatalf("\nwanted:\nerror without page\ngot:\n%+v", result)
		}
		if len(result.Recommendations) != len(securityHeaders)+2 {
			t.Errorf("\nwanted:\n%d recommendations\ngot:\n%d", len(securityHeaders)+2, len(result.Recommendations))
		}
	})
}

func TestProbeEmail(t *testing.T) {
	t.Run("should report a server without starttls", func(t *testing.T) {
		resolver := startDNS(t, false, exampleZone()...)
		smtpAddr := startSMTP(t, "PIPELINING", "8BITMIME")
		checker := newTestChecker(t,
			WithResolver(resolver),
			WithWaypoints(map[string]string{"mail.example.com:25": smtpAddr}),
		)

		result := checker.probeEmail(context.Background(), "example.com")
		if result.STARTTLSSupported || result.Error != "" {
			t.Fatalf("\nwanted:\nno starttls without error\ngot:\n%+v", result)
		}
		if len(result.DANETLSA) != 1 {
			t.Errorf("\nwanted:\none dane record\ngot:\n%v", result.DANETLSA)
		}

		want := []string{"The primary mail server does not advertise STARTTLS. Enable STARTTLS to encrypt email in transit."}
		if got := emailRecommendations(result); !slices.Equal(got, want) {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should recommend spf and dmarc for bare domains", func(t *testing.T) {
		checker := newTestChecker(t, WithResolver(startDNS(t, false, "example.com. 300 IN A 127.0.0.1")))

		result := checker.probeEmail(context.Background(), "example.com")
		if result.Error != "" || len(result.MX) != 0 {
			t.Fatalf("\nwanted:\nno mx without error\ngot:\n%+v", result)
		}

		want := []string{
			"No SPF record found. Publish an SPF record to prevent email spoofing.",
			"No DMARC record found. Publish a DMARC policy to protect your domain from email abuse.",
		}
		if got := emailRecommendations(result); !slices.Equal(got, want) {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should continue after an unreachable mail server", func(t *testing.T) {
		checker := newTestChecker(t,
			WithResolver(startDNS(t, false, exampleZone()...)),
			WithWaypoints(map[string]string{"mail.example.com:25": "127.0.0.1:1"}),
		)

		result := checker.probeEmail(context.Background(), "example.com")
		if !strings.Contains(result.Error, "mail.example.com:25") {
			t.Errorf("\nwanted:\nconnection error\ngot:\n%q", result.Error)
		}
		if result.SPFRecord == "" || len(result.DANETLSA) != 1 {
			t.Errorf("\nwanted:\nremaining records\ngot:\n%+v", result)
		}
	})
}
