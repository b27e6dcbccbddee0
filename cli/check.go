package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/domainwatch/domainwatch/check"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/spf13/cobra"
)

func checkCmd(opts *rootOptions) *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "check <domain>...",
		Short: "Run the security checks against domains and print the reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "pretty" && format != "json" {
				return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			checker, err := cfg.NewChecker(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			results := check.RunAll(cmd.Context(), checker.Workers, args,
				func(ctx context.Context, name string) (*domain.Report, error) {
					name, err := check.NormalizeDomain(name, cfg.DefaultTLD)
					if err != nil {
						return nil, err
					}
					return checker.Check(ctx, name)
				})

			if err := printResults(cmd.OutOrStdout(), results, format); err != nil {
				return err
			}
			if failed := countFailures(results); failed > 0 {
				return fmt.Errorf("%d domain(s) could not be checked", failed)
			}
			return nil
		},
	}

	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	return c
}

func printResults(w io.Writer, results []check.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "pretty", "":
		for _, r := range results {
			printPrettyResult(w, r)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func printPrettyResult(w io.Writer, r check.Result) {
	fmt.Fprintf(w, "%s\n", r.Domain)
	if r.Report == nil {
		fmt.Fprintf(w, "  error: %s (%s)\n\n", r.Error, r.Kind)
		return
	}
	report := r.Report

	fmt.Fprintf(w, "  checked:      %s\n", report.CheckedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(w, "  dnssec:       %s\n", yesNo(report.DNSSEC.DNSSECValid))
	if len(report.DNSSEC.TLSARecords) > 0 {
		fmt.Fprintf(w, "  tlsa:         %s\n", strings.Join(report.DNSSEC.TLSARecords, ", "))
	}
	if report.SSL.SSLError != "" {
		fmt.Fprintf(w, "  certificate:  %s\n", report.SSL.SSLError)
	} else {
		fmt.Fprintf(w, "  certificate:  valid %s, expires %s\n", yesNo(report.SSL.CertificateValid), report.SSL.CertificateExpiration)
	}
	fmt.Fprintf(w, "  tls:          %s\n", strings.Join(report.SSL.TLSVersions, ", "))
	fmt.Fprintf(w, "  headers:      score %d\n", report.HTTPHeaders.SecurityScore)
	fmt.Fprintf(w, "  email:        spf %s, dmarc %s, starttls %s\n",
		yesNo(report.Email.SPFRecord != ""), yesNo(report.Email.DMARCRecord != ""), yesNo(report.Email.STARTTLSSupported))

	for _, tech := range report.Technologies {
		vulns, ok := report.Vulnerabilities[tech]
		if !ok {
			fmt.Fprintf(w, "  technology:   %s\n", tech)
			continue
		}
		fmt.Fprintf(w, "  technology:   %s %s (%d CVEs)\n", tech, vulns.Version, len(vulns.CVEs))
	}

	if len(report.Recommendations.All) > 0 {
		fmt.Fprintf(w, "  recommendations:\n")
		for _, rec := range report.Recommendations.All {
			fmt.Fprintf(w, "    - %s\n", rec)
		}
	}
	fmt.Fprintln(w)
}

func countFailures(results []check.Result) int {
	n := 0
	for _, r := range results {
		if r.Report == nil {
			n++
		}
	}
	return n
}
