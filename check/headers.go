package check

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/rawhttp"
)

const userAgent = "Mozilla/5.0 (compatible; domainwatch/1.0)"

// page is the landing page fetched by the header probe and reused for technology detection.
type page struct {
	Header http.Header
	Body   []byte
}

type headerCheck struct {
	name           string
	field          func(*domain.HeadersResult) *bool
	recommendation string
}

var securityHeaders = []headerCheck{
	{"Content-Security-Policy", func(r *domain.HeadersResult) *bool { return &r.ContentSecurityPolicy },
		"Add a Content-Security-Policy header to mitigate cross-site scripting attacks."},
	{"X-Content-Type-Options", func(r *domain.HeadersResult) *bool { return &r.XContentTypeOptions },
		"Add X-Content-Type-Options to prevent MIME-sniffing vulnerabilities."},
	{"X-Frame-Options", func(r *domain.HeadersResult) *bool { return &r.XFrameOptions },
		"Add X-Frame-Options to protect against clickjacking attacks."},
	{"X-XSS-Protection", func(r *domain.HeadersResult) *bool { return &r.XXSSProtection },
		"Add X-XSS-Protection to improve cross-site scripting (XSS) protection."},
	{"Permissions-Policy", func(r *domain.HeadersResult) *bool { return &r.PermissionsPolicy },
		"Add a Permissions-Policy header to restrict browser features."},
	{"Referrer-Policy", func(r *domain.HeadersResult) *bool { return &r.ReferrerPolicy },
		"Add a Referrer-Policy header to control referrer information sent with requests."},
}

// probeHeaders fetches the landing page over https, falling back to http, and scores its security headers.
// It also checks whether plain http redirects to https.
func (c *Checker) probeHeaders(ctx context.Context, name string) (domain.HeadersResult, *page) {
	result := domain.HeadersResult{Recommendations: []string{}}

	res, err := c.get(ctx, "https://"+name+"/")
	if err != nil {
		c.Logger.Debug("https request failed, falling back to http", "domain", name, "error", err)
		res, err = c.get(ctx, "http://"+name+"/")
	}

	var landing *page
	if err != nil {
		result.Error = err.Error()
	} else {
		defer res.Body.Close()
		landing = c.readPage(res, &result)

		for _, header := range securityHeaders {
			present := res.Header.Get(header.name) != ""
			*header.field(&result) = present
			if present {
				result.SecurityScore++
			}
		}
		result.HSTSSupported = res.Request.URL.Scheme == "https" && res.Header.Get("Strict-Transport-Security") != ""
	}

	if res, err := c.get(ctx, "http://"+name+"/"); err == nil {
		result.RedirectsToHTTPS = res.Request.URL.Scheme == "https"
		res.Body.Close()
	}

	for _, header := range securityHeaders {
		if !*header.field(&result) {
			result.Recommendations = append(result.Recommendations, header.recommendation)
		}
	}
	if !result.HSTSSupported {
		result.Recommendations = append(result.Recommendations,
			"Add a Strict-Transport-Security header to enforce HTTPS connections.")
	}
	if !result.RedirectsToHTTPS {
		result.Recommendations = append(result.Recommendations, "Redirect plain HTTP requests to HTTPS.")
	}
	return result, landing
}

func (c *Checker) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s : %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s : %w", url, err)
	}
	return res, nil
}

// readPage decodes the body, keeps up to BodyLimit bytes and records the request and response as evidence.
func (c *Checker) readPage(res *http.Response, result *domain.HeadersResult) *page {
	if err := rawhttp.DecodeBody(res); err != nil {
		c.Logger.Debug("decoding body failed", "url", res.Request.URL.String(), "error", err)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, c.BodyLimit))
	if err != nil {
		c.Logger.Debug("reading body failed", "url", res.Request.URL.String(), "error", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))

	var evidence strings.Builder
	if sent, err := rawhttp.DumpRequest(res.Request, 0); err == nil {
		evidence.Write(sent.Raw)
	}
	if dump, err := rawhttp.DumpResponse(res, rawhttp.DefaultBodyLimit); err == nil {
		if dump.Pretty != "" {
			evidence.WriteString(dump.Pretty)
		} else {
			evidence.Write(dump.Raw)
		}
	}
	result.Evidence = evidence.String()
	return &page{Header: res.Header.Clone(), Body: body}
}
