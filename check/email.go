package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"slices"
	"strings"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/miekg/dns"
)

const ehloName = "domainwatch.local"

// probeEmail collects SPF, DMARC, MX and DANE records and asks the preferred MX for STARTTLS.
// Every step runs even if a previous one failed, failures are joined in the error field.
func (c *Checker) probeEmail(ctx context.Context, name string) domain.EmailResult {
	result := domain.EmailResult{
		MX:       []string{},
		DANETLSA: []string{},
	}
	var errs []string

	txt, err := c.lookupTXT(ctx, name)
	if err != nil {
		errs = append(errs, err.Error())
	}
	result.SPFRecord = firstWithPrefix(txt, "v=spf1")

	dmarc, err := c.lookupTXT(ctx, "_dmarc."+name)
	if err != nil {
		errs = append(errs, err.Error())
	}
	result.DMARCRecord = firstWithPrefix(dmarc, "v=DMARC1")
	if result.DMARCRecord == "" && len(dmarc) > 0 {
		result.DMARCRecord = dmarc[0]
	}

	exchanges, err := c.lookupMX(ctx, name)
	if err != nil {
		errs = append(errs, err.Error())
	}
	for _, mx := range exchanges {
		result.MX = append(result.MX, fmt.Sprintf("%d %s", mx.Preference, mx.Host))
	}

	if len(exchanges) > 0 {
		supported, err := c.startTLS(ctx, exchanges[0].Host)
		if err != nil {
			c.Logger.Debug("starttls probe failed", "domain", name, "mx", exchanges[0].Host, "error", err)
			errs = append(errs, err.Error())
		}
		result.STARTTLSSupported = supported
	}

	dane, err := c.lookupTLSA(ctx, 25, "tcp", name)
	if err != nil {
		errs = append(errs, err.Error())
	}
	result.DANETLSA = dane

	result.Error = strings.Join(errs, "; ")
	return result
}

func firstWithPrefix(records []string, prefix string) string {
	for _, r := range records {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r)), strings.ToLower(prefix)) {
			return r
		}
	}
	return ""
}

type mailExchange struct {
	Preference uint16
	Host       string
}

// lookupMX returns the mail exchanges of name ordered by preference, then host.
func (c *Checker) lookupMX(ctx context.Context, name string) ([]mailExchange, error) {
	in, err := c.query(ctx, name, dns.TypeMX)
	if errors.Is(err, errNXDomain) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var exchanges []mailExchange
	for _, mx := range answers[*dns.MX](in) {
		host := strings.TrimSuffix(mx.Mx, ".")
		// RFC 7505 null MX
		if host == "" {
			continue
		}
		exchanges = append(exchanges, mailExchange{Preference: mx.Preference, Host: host})
	}
	slices.SortFunc(exchanges, func(a, b mailExchange) int {
		if a.Preference != b.Preference {
			return int(a.Preference) - int(b.Preference)
		}
		return strings.Compare(a.Host, b.Host)
	})
	return exchanges, nil
}

// startTLS connects to port 25 of host and reports whether STARTTLS is advertised in the EHLO reply.
func (c *Checker) startTLS(ctx context.Context, host string) (bool, error) {
	addr := net.JoinHostPort(host, "25")
	conn, err := c.dialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Errorf("connecting to %s : %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false, fmt.Errorf("setting deadline on %s : %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return false, fmt.Errorf("reading greeting from %s : %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello(ehloName); err != nil {
		return false, fmt.Errorf("sending EHLO to %s : %w", addr, err)
	}
	supported, _ := client.Extension("STARTTLS")
	return supported, nil
}

func emailRecommendations(result domain.EmailResult) []string {
	var recommendations []string
	if result.SPFRecord == "" {
		recommendations = append(recommendations, "No SPF record found. Publish an SPF record to prevent email spoofing.")
	}
	if result.DMARCRecord == "" {
		recommendations = append(recommendations, "No DMARC record found. Publish a DMARC policy to protect your domain from email abuse.")
	}
	if len(result.MX) > 0 && !result.STARTTLSSupported {
		recommendations = append(recommendations, "The primary mail server does not advertise STARTTLS. Enable STARTTLS to encrypt email in transit.")
	}
	return recommendations
}
