package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/miekg/dns"
)

const fallbackResolver = "1.1.1.1:53"

var errNXDomain = errors.New("no such domain")

// systemResolver returns the first nameserver of /etc/resolv.conf.
func systemResolver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// query sends a recursive query with the DNSSEC OK bit set and retries over TCP when truncated.
// A NXDOMAIN answer is returned together with errNXDomain.
func (c *Checker) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	msg.AuthenticatedData = true
	msg.SetEdns0(4096, true)

	client := &dns.Client{Timeout: c.Timeout}
	in, _, err := client.ExchangeContext(ctx, msg, c.Resolver)
	if err == nil && in.Truncated {
		client.Net = "tcp"
		in, _, err = client.ExchangeContext(ctx, msg, c.Resolver)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s %s : %w", dns.TypeToString[qtype], name, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
		return in, nil
	case dns.RcodeNameError:
		return in, fmt.Errorf("querying %s %s : %w", dns.TypeToString[qtype], name, errNXDomain)
	default:
		return nil, fmt.Errorf("querying %s %s : %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode])
	}
}

// answers returns the answer records of type T.
func answers[T dns.RR](msg *dns.Msg) []T {
	out := []T{}
	if msg == nil {
		return out
	}
	for _, rr := range msg.Answer {
		if record, ok := rr.(T); ok {
			out = append(out, record)
		}
	}
	return out
}

func formatTLSA(records []*dns.TLSA) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, fmt.Sprintf("%d %d %d %s", r.Usage, r.Selector, r.MatchingType, r.Certificate))
	}
	return out
}

// lookupTLSA returns the TLSA records published for port/proto on name. A missing name yields no records.
func (c *Checker) lookupTLSA(ctx context.Context, port int, proto, name string) ([]string, error) {
	in, err := c.query(ctx, fmt.Sprintf("_%d._%s.%s", port, proto, name), dns.TypeTLSA)
	if errors.Is(err, errNXDomain) {
		return []string{}, nil
	}
	if err != nil {
		return []string{}, err
	}
	return formatTLSA(answers[*dns.TLSA](in)), nil
}

// lookupTXT returns every TXT record of name with its character strings joined.
func (c *Checker) lookupTXT(ctx context.Context, name string) ([]string, error) {
	in, err := c.query(ctx, name, dns.TypeTXT)
	if errors.Is(err, errNXDomain) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	records := answers[*dns.TXT](in)
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, strings.Join(r.Txt, ""))
	}
	return out, nil
}

// probeDNSSEC reports whether the resolver validated the A answer of the domain and lists its HTTPS TLSA records.
func (c *Checker) probeDNSSEC(ctx context.Context, name string) domain.DNSSECResult {
	result := domain.DNSSECResult{
		TLSARecords:     []string{},
		Recommendations: []string{},
	}

	in, err := c.query(ctx, name, dns.TypeA)
	switch {
	case errors.Is(err, errNXDomain):
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("No DNS records found for %s. Ensure your DNS is properly configured.", name))
	case err != nil:
		c.Logger.Debug("dnssec probe failed", "domain", name, "error", err)
		result.Error = err.Error()
	default:
		result.DNSSECValid = in.AuthenticatedData

		records, err := c.lookupTLSA(ctx, 443, "tcp", name)
		if err != nil {
			c.Logger.Debug("tlsa lookup failed", "domain", name, "error", err)
			result.Error = err.Error()
		}
		result.TLSARecords = records
		if err == nil && len(records) == 0 {
			result.Recommendations = append(result.Recommendations,
				"No TLSA records found. Configure TLSA for better SSL validation.")
		}
	}

	if !result.DNSSECValid {
		result.Recommendations = append(result.Recommendations,
			"DNSSEC is not enabled. Configure DNSSEC to improve domain security.")
	}
	return result
}
