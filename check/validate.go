package check

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
	"golang.org/x/net/idna"
)

var (
	labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	tldPattern   = regexp.MustCompile(`^([a-z]{2,63}|xn--[a-z0-9-]{1,59})$`)
)

// NormalizeDomain turns user input into a lowercase ASCII domain name.
// A name without a dot gets defaultTLD appended, "sapo" becomes "sapo.pt" for defaultTLD "pt".
func NormalizeDomain(raw, defaultTLD string) (string, error) {
	invalid := func(reason string) error {
		return &domain.OpError{
			Op:   "normalize domain",
			Kind: domain.KindInvalidDomain,
			Err:  fmt.Errorf("%q %s : %w", raw, reason, domain.ErrInvalidDomain),
		}
	}

	name := strings.TrimSuffix(strings.TrimSpace(raw), ".")
	if name == "" {
		return "", invalid("is empty")
	}

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", invalid(fmt.Sprintf("is not a valid IDN (%v)", err))
	}
	name = strings.ToLower(ascii)

	if !strings.Contains(name, ".") {
		tld := strings.Trim(strings.ToLower(defaultTLD), ". ")
		if tld == "" {
			return "", invalid("is not fully qualified")
		}
		name = name + "." + tld
	}

	if len(name) > 253 {
		return "", invalid("is longer than 253 characters")
	}

	labels := strings.Split(name, ".")
	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return "", invalid(fmt.Sprintf("has an invalid label %q", label))
		}
	}
	if !tldPattern.MatchString(labels[len(labels)-1]) {
		return "", invalid("has an invalid top level domain")
	}
	return name, nil
}
