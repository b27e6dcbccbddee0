package check

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"strings"
	"unicode"

	"github.com/domainwatch/domainwatch/domain"
	"golang.org/x/net/html"
)

// Technology is a product detected on the landing page, Version may be empty.
type Technology struct {
	Name    string
	Version string
}

// DetectTechnologies extracts products from the Server and X-Powered-By headers and the
// generator meta tag of a page. Names are unique, the first version seen wins.
func DetectTechnologies(header http.Header, body []byte) []Technology {
	var found []Technology
	for _, name := range []string{"Server", "X-Powered-By"} {
		for _, value := range header.Values(name) {
			found = append(found, parseProductTokens(value)...)
		}
	}
	if generator := metaGenerator(body); generator != "" {
		found = append(found, parseGenerator(generator))
	}

	seen := make(map[string]int)
	out := []Technology{}
	for _, tech := range found {
		key := strings.ToLower(tech.Name)
		if key == "" {
			continue
		}
		if i, ok := seen[key]; ok {
			if out[i].Version == "" {
				out[i].Version = tech.Version
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, tech)
	}
	slices.SortFunc(out, func(a, b Technology) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// parseProductTokens splits a header such as "Apache/2.4.41 (Ubuntu) PHP/7.4" into products,
// dropping comments in parentheses.
func parseProductTokens(value string) []Technology {
	var out []Technology
	depth := 0
	for _, token := range strings.Fields(value) {
		if depth > 0 || strings.HasPrefix(token, "(") {
			depth += strings.Count(token, "(") - strings.Count(token, ")")
			continue
		}
		token = strings.Trim(token, ",;")
		if token == "" {
			continue
		}
		name, version, _ := strings.Cut(token, "/")
		out = append(out, Technology{Name: name, Version: version})
	}
	return out
}

// parseGenerator splits "WordPress 6.4.2" into name and version. The last word is the version
// when it starts with a digit.
func parseGenerator(content string) Technology {
	words := strings.Fields(content)
	if len(words) > 1 {
		last := words[len(words)-1]
		if r := []rune(last); len(r) > 0 && unicode.IsDigit(r[0]) {
			return Technology{Name: strings.Join(words[:len(words)-1], " "), Version: last}
		}
	}
	return Technology{Name: strings.Join(words, " ")}
}

// metaGenerator returns the content of <meta name="generator">.
func metaGenerator(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data == "body" {
				return ""
			}
			if token.Data != "meta" {
				continue
			}
			var name, content string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if strings.EqualFold(name, "generator") {
				return strings.TrimSpace(content)
			}
		}
	}
}

// probeTechnologies detects the technologies of the page and looks up their CVEs.
func (c *Checker) probeTechnologies(ctx context.Context, p *page) ([]string, map[string]domain.TechnologyCVEs) {
	if p == nil {
		return []string{}, map[string]domain.TechnologyCVEs{}
	}
	technologies := DetectTechnologies(p.Header, p.Body)
	names := make([]string, 0, len(technologies))
	vulnerabilities := make(map[string]domain.TechnologyCVEs, len(technologies))

	for _, tech := range technologies {
		names = append(names, tech.Name)
		if c.NVD == nil {
			continue
		}

		entry := domain.TechnologyCVEs{Version: tech.Version, CVEs: []domain.CVE{}}
		cves, err := c.NVD.Search(ctx, tech.Name, tech.Version)
		if err != nil {
			c.Logger.Debug("cve lookup failed", "technology", tech.Name, "version", tech.Version, "error", err)
			entry.Error = err.Error()
		} else {
			entry.CVEs = cves
		}
		vulnerabilities[tech.Name] = entry
	}
	return names, vulnerabilities
}
