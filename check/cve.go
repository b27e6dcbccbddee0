package check

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/domainwatch/domainwatch/domain"
)

const (
	DefaultNVDURL         = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	DefaultResultsPerPage = 10
	noDescription         = "No description available."
)

// scorePaths are tried in order, the first CVSS base score found is the severity.
var scorePaths = []string{
	`$.metrics.cvssMetricV31[0].cvssData.baseScore`,
	`$.metrics.cvssMetricV30[0].cvssData.baseScore`,
	`$.metrics.cvssMetricV2[0].cvssData.baseScore`,
}

// NVDClient queries the NVD CVE API 2.0 by keyword.
type NVDClient struct {
	URL            string
	APIKey         string
	ResultsPerPage int
	Client         *http.Client
}

func NewNVDClient(baseURL, apiKey string, resultsPerPage int) *NVDClient {
	if baseURL == "" {
		baseURL = DefaultNVDURL
	}
	if resultsPerPage <= 0 {
		resultsPerPage = DefaultResultsPerPage
	}
	return &NVDClient{
		URL:            baseURL,
		APIKey:         apiKey,
		ResultsPerPage: resultsPerPage,
		Client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Search returns the CVEs matching "technology version", or technology alone when version is empty.
func (n *NVDClient) Search(ctx context.Context, technology, version string) ([]domain.CVE, error) {
	keyword := technology
	if version != "" {
		keyword = technology + " " + version
	}

	endpoint, err := url.Parse(n.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing nvd url : %w", err)
	}
	query := endpoint.Query()
	query.Set("keywordSearch", keyword)
	query.Set("resultsPerPage", strconv.Itoa(n.ResultsPerPage))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating nvd request : %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if n.APIKey != "" {
		req.Header.Set("apiKey", n.APIKey)
	}

	res, err := n.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching cves for %q : %w", keyword, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching cves for %q : unexpected status %s", keyword, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading nvd response : %w", err)
	}
	return ParseCVEs(body)
}

// ParseCVEs extracts id, English description and CVSS severity from an NVD API 2.0 response.
func ParseCVEs(body []byte) ([]domain.CVE, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding nvd response : %w", err)
	}

	entries, err := jsonpath.Get(`$.vulnerabilities[*].cve`, doc)
	if err != nil {
		return []domain.CVE{}, nil
	}
	list, ok := entries.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected vulnerabilities type %T", entries)
	}

	cves := make([]domain.CVE, 0, len(list))
	for _, entry := range list {
		cve := domain.CVE{Description: noDescription}
		if id, err := jsonpath.Get(`$.id`, entry); err == nil {
			cve.ID, _ = id.(string)
		}
		if descriptions, err := jsonpath.Get(`$.descriptions[?(@.lang == "en")].value`, entry); err == nil {
			if values, ok := descriptions.([]any); ok && len(values) > 0 {
				if text, ok := values[0].(string); ok {
					cve.Description = text
				}
			}
		}
		for _, path := range scorePaths {
			score, err := jsonpath.Get(path, entry)
			if err != nil {
				continue
			}
			if value, ok := score.(float64); ok {
				cve.Severity = &value
				break
			}
		}
		cves = append(cves, cve)
	}
	return cves, nil
}
