// Package check runs the domain security probes behind the check API: DNSSEC and TLSA records,
// the TLS certificate, HTTP security headers, mail security records and known vulnerabilities of
// the detected web technologies.
//
// A Checker is safe for concurrent use. Probe failures never fail a report, they are recorded in the
// error field of the probe result instead.
package check

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 10
)

// Checker holds the configuration shared by all probes.
type Checker struct {
	Logger    *slog.Logger
	Timeout   time.Duration     // Timeout of a single network operation
	Workers   int               // Concurrent checks in CheckMany
	Resolver  string            // host:port of the recursive DNS resolver
	Waypoints map[string]string // host:port overrides applied when dialing
	RootCAs   *x509.CertPool    // Trust anchors for certificate validation, nil uses the system pool
	Scope     *Scope            // Domains allowed to be probed
	NVD       *NVDClient        // Vulnerability feed, nil disables CVE lookups
	BodyLimit int64             // Bytes of the landing page kept for evidence and technology detection

	httpClient *http.Client
	now        func() time.Time
}

// New creates a Checker with default settings and applies the options.
func New(options ...func(*Checker) error) (*Checker, error) {
	checker := &Checker{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:   DefaultTimeout,
		Workers:   DefaultWorkers,
		Waypoints: make(map[string]string),
		Scope:     NewScope(true),
		BodyLimit: 512 << 10,
		now:       time.Now,
	}
	if err := checker.WithOptions(options...); err != nil {
		return nil, err
	}
	if checker.Resolver == "" {
		checker.Resolver = systemResolver()
	}
	checker.httpClient = &http.Client{
		Transport: newProbeTransport(checker.dialContext),
		Timeout:   2 * checker.Timeout,
	}
	return checker, nil
}

// WithOptions applies a series of configuration functions to the checker.
func (c *Checker) WithOptions(options ...func(*Checker) error) error {
	for _, option := range options {
		if err := option(c); err != nil {
			return fmt.Errorf("applying option on checker : %w", err)
		}
	}
	return nil
}

// WithLogger sets the logger, a nil logger keeps the default discarding one.
func WithLogger(logger *slog.Logger) func(*Checker) error {
	return func(c *Checker) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

func WithTimeout(timeout time.Duration) func(*Checker) error {
	return func(c *Checker) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		c.Timeout = timeout
		return nil
	}
}

func WithWorkers(workers int) func(*Checker) error {
	return func(c *Checker) error {
		if workers <= 0 {
			return fmt.Errorf("workers must be positive, got %d", workers)
		}
		c.Workers = workers
		return nil
	}
}

// WithResolver sets the DNS resolver address, a missing port defaults to 53.
func WithResolver(address string) func(*Checker) error {
	return func(c *Checker) error {
		if address == "" {
			return nil
		}
		if _, _, err := net.SplitHostPort(address); err != nil {
			address = net.JoinHostPort(address, "53")
		}
		c.Resolver = address
		return nil
	}
}

// WithWaypoints redirects connections for host:port keys to the mapped host:port.
func WithWaypoints(waypoints map[string]string) func(*Checker) error {
	return func(c *Checker) error {
		for hostPort, override := range waypoints {
			if _, _, err := net.SplitHostPort(hostPort); err != nil {
				return fmt.Errorf("waypoint %q : %w", hostPort, err)
			}
			if _, _, err := net.SplitHostPort(override); err != nil {
				return fmt.Errorf("waypoint override %q : %w", override, err)
			}
			c.Waypoints[hostPort] = override
		}
		return nil
	}
}

func WithRootCAs(pool *x509.CertPool) func(*Checker) error {
	return func(c *Checker) error {
		c.RootCAs = pool
		return nil
	}
}

func WithScope(scope *Scope) func(*Checker) error {
	return func(c *Checker) error {
		if scope == nil {
			return errors.New("scope is nil")
		}
		c.Scope = scope
		return nil
	}
}

func WithNVD(client *NVDClient) func(*Checker) error {
	return func(c *Checker) error {
		c.NVD = client
		return nil
	}
}

// dialContext dials addr, honouring the waypoint overrides.
func (c *Checker) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if override, ok := c.Waypoints[addr]; ok {
		c.Logger.Debug("dialing waypoint", "address", addr, "override", override)
		addr = override
	}
	dialer := &net.Dialer{Timeout: c.Timeout}
	return dialer.DialContext(ctx, network, addr)
}

// Check validates the domain and runs every probe against it concurrently.
// The returned error is only set for invalid or out of scope domains and a cancelled context.
func (c *Checker) Check(ctx context.Context, name string) (*domain.Report, error) {
	name, err := NormalizeDomain(name, "")
	if err != nil {
		return nil, err
	}
	if err := c.Scope.Check(name); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating report id : %w", err)
	}

	report := &domain.Report{
		ID:              id,
		Domain:          name,
		CheckedAt:       c.now().UTC(),
		Technologies:    []string{},
		Vulnerabilities: map[string]domain.TechnologyCVEs{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.DNSSEC = c.probeDNSSEC(gctx, name)
		return nil
	})
	g.Go(func() error {
		report.SSL = c.probeTLS(gctx, name)
		return nil
	})
	g.Go(func() error {
		report.Email = c.probeEmail(gctx, name)
		return nil
	})
	g.Go(func() error {
		headers, page := c.probeHeaders(gctx, name)
		report.HTTPHeaders = headers
		report.Technologies, report.Vulnerabilities = c.probeTechnologies(gctx, page)
		return nil
	})
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checking %s : %w", name, err)
	}

	report.Recommendations = domain.Recommendations{All: consolidate(report)}
	c.Logger.Debug("domain checked", "domain", name, "report_id", id, "recommendations", len(report.Recommendations.All))
	return report, nil
}

// consolidate gathers the recommendations of every probe, deduplicated and sorted.
func consolidate(report *domain.Report) []string {
	all := make([]string, 0, len(report.DNSSEC.Recommendations)+len(report.HTTPHeaders.Recommendations)+4)
	all = append(all, report.DNSSEC.Recommendations...)
	all = append(all, report.HTTPHeaders.Recommendations...)
	all = append(all, sslRecommendations(report.SSL)...)
	all = append(all, emailRecommendations(report.Email)...)

	slices.Sort(all)
	return slices.Compact(all)
}

// Result is the outcome of one domain in a bulk check.
type Result struct {
	Domain string         `json:"domain"`
	Report *domain.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
}

// CheckMany checks every domain with at most Workers checks in flight.
// Results are returned in the order of the input.
func (c *Checker) CheckMany(ctx context.Context, domains []string) []Result {
	return RunAll(ctx, c.Workers, domains, c.Check)
}

// RunAll calls fn for every domain with at most workers concurrent calls and returns one Result per
// domain in input order. Errors are reported per domain.
func RunAll(ctx context.Context, workers int, domains []string, fn func(context.Context, string) (*domain.Report, error)) []Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result, len(domains))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range domains {
		g.Go(func() error {
			results[i].Domain = name
			if err := gctx.Err(); err != nil {
				results[i].Error = err.Error()
				results[i].Kind = string(domain.KindInternal)
				return nil
			}
			report, err := fn(gctx, name)
			if err != nil {
				results[i].Error = err.Error()
				results[i].Kind = string(domain.KindOf(err))
				return nil
			}
			results[i].Report = report
			return nil
		})
	}
	g.Wait()
	return results
}
