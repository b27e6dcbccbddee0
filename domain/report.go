package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReportRepository is the interface that holds the security check report cache methods.
type ReportRepository interface {
	// PutReport stores the report, replacing any previous report for the same domain.
	PutReport(report *Report) error

	// GetReport returns the report for the domain if it was checked at or after notBefore.
	// It returns ErrNotFound if there is no report or the stored one is older.
	GetReport(domain string, notBefore time.Time) (*Report, error)

	// LatestReport returns the stored report for the domain regardless of its age.
	// It returns ErrNotFound if the domain was never checked.
	LatestReport(domain string) (*Report, error)

	// DeleteExpired removes every report checked before the given time and returns the number removed.
	DeleteExpired(before time.Time) (int64, error)
}

// Report is the consolidated result of every security probe run against a single domain.
type Report struct {
	ID              uuid.UUID                 `json:"id"`
	Domain          string                    `json:"domain"`
	CheckedAt       time.Time                 `json:"checked_at"`
	DNSSEC          DNSSECResult              `json:"dnssec_tlsa"`
	SSL             SSLResult                 `json:"ssl_info"`
	HTTPHeaders     HeadersResult             `json:"http_headers"`
	Email           EmailResult               `json:"email_security"`
	Technologies    []string                  `json:"technologies"`
	Vulnerabilities map[string]TechnologyCVEs `json:"vulnerabilities"`
	Recommendations Recommendations           `json:"recommendations"`
}

// Recommendations groups the deduplicated remediation advice of all probes.
type Recommendations struct {
	All []string `json:"all"`
}

// DNSSECResult holds the DNSSEC validation state and the TLSA records published for HTTPS.
type DNSSECResult struct {
	DNSSECValid     bool     `json:"dnssec_valid"`
	TLSARecords     []string `json:"tlsa_records"`
	Recommendations []string `json:"recommendations"`
	Error           string   `json:"error,omitempty"`
}

// SSLResult describes the certificate served on port 443 and the negotiated TLS versions.
type SSLResult struct {
	CertificateValid      bool     `json:"certificate_valid"`
	CertificateIssuer     string   `json:"certificate_issuer"`
	CertificateExpiration string   `json:"certificate_expiration"`
	CertificateChain      []string `json:"certificate_chain"`
	TLSVersions           []string `json:"tls_versions_supported"`
	SSLError              string   `json:"ssl_error,omitempty"`
}

// HeadersResult records which HTTP security headers the site sends.
type HeadersResult struct {
	RedirectsToHTTPS      bool     `json:"redirects_to_https"`
	HSTSSupported         bool     `json:"hsts_supported"`
	ContentSecurityPolicy bool     `json:"content_security_policy"`
	XContentTypeOptions   bool     `json:"x_content_type_options"`
	XFrameOptions         bool     `json:"x_frame_options"`
	XXSSProtection        bool     `json:"x_xss_protection"`
	PermissionsPolicy     bool     `json:"permissions_policy"`
	ReferrerPolicy        bool     `json:"referrer_policy"`
	SecurityScore         int      `json:"security_score"`
	Recommendations       []string `json:"recommendations"`
	Evidence              string   `json:"evidence,omitempty"` // Raw response head, prettified body appended when possible
	Error                 string   `json:"error,omitempty"`
}

// EmailResult holds the mail related DNS records and the STARTTLS capability of the primary MX.
type EmailResult struct {
	SPFRecord         string   `json:"spf_record"`
	DMARCRecord       string   `json:"dmarc_record"`
	MX                []string `json:"mx"`
	STARTTLSSupported bool     `json:"starttls_supported"`
	DANETLSA          []string `json:"dane_tlsa"`
	Error             string   `json:"error,omitempty"`
}

// TechnologyCVEs lists the known vulnerabilities of a detected technology.
type TechnologyCVEs struct {
	Version string `json:"version"`
	CVEs    []CVE  `json:"cves"`
	Error   string `json:"error,omitempty"`
}

// CVE is a single vulnerability entry. Severity is the CVSS base score, nil when the feed has none.
type CVE struct {
	ID          string   `json:"id"`
	Severity    *float64 `json:"severity"`
	Description string   `json:"description"`
}
