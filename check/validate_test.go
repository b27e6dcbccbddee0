package check

import (
	"errors"
	"strings"
	"testing"

	"github.com/domainwatch/domainwatch/domain"
)

func TestNormalizeDomain(t *testing.T) {
	t.Run("should normalize valid input", func(t *testing.T) {
		tests := []struct {
			raw  string
			tld  string
			want string
		}{
			{"example.com", "pt", "example.com"},
			{"  Example.COM.  ", "pt", "example.com"},
			{"sapo", "pt", "sapo.pt"},
			{"sapo", ".PT", "sapo.pt"},
			{"münchen.de", "", "xn--mnchen-3ya.de"},
			{"a-b.c-d.example.org", "", "a-b.c-d.example.org"},
			{"xn--80ak6aa92e.com", "", "xn--80ak6aa92e.com"},
		}

		for _, tt := range tests {
			got, err := NormalizeDomain(tt.raw, tt.tld)
			if err != nil {
				t.Errorf("NormalizeDomain(%q, %q)\nwanted:\nnil\ngot:\n%v", tt.raw, tt.tld, err)
				continue
			}
			if got != tt.want {
				t.Errorf("NormalizeDomain(%q, %q)\nwanted:\n%s\ngot:\n%s", tt.raw, tt.tld, tt.want, got)
			}
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		tests := []struct {
			raw string
			tld string
		}{
			{"", "pt"},
			{"   ", "pt"},
			{"localhost", ""},
			{"-bad.example.com", ""},
			{"bad-.example.com", ""},
			{"exa mple.com", ""},
			{"example..com", ""},
			{"example.c", ""},
			{"example.123", ""},
			{"127.0.0.1", ""},
			{strings.Repeat("a", 64) + ".com", ""},
			{strings.Repeat("abcdefghi.", 26) + "com", ""},
		}

		for _, tt := range tests {
			_, err := NormalizeDomain(tt.raw, tt.tld)
			if !errors.Is(err, domain.ErrInvalidDomain) {
				t.Errorf("NormalizeDomain(%q, %q)\nwanted:\n%v\ngot:\n%v", tt.raw, tt.tld, domain.ErrInvalidDomain, err)
			}
			if domain.KindOf(err) != domain.KindInvalidDomain {
				t.Errorf("NormalizeDomain(%q, %q) kind\nwanted:\n%s\ngot:\n%s", tt.raw, tt.tld, domain.KindInvalidDomain, domain.KindOf(err))
			}
		}
	})
}

func TestScope(t *testing.T) {
	t.Run("should allow everything without rules", func(t *testing.T) {
		scope := NewScope(true)
		if !scope.Allows("example.pt") {
			t.Fatalf("\nwanted:\ntrue\ngot:\nfalse")
		}
	})

	t.Run("should prefer exclusions over inclusions", func(t *testing.T) {
		scope, err := NewScopeFromRules([]string{`\.pt$`, `-^internal\.`}, []string{`^staging\.`})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		tests := map[string]bool{
			"sapo.pt":          true,
			"internal.sapo.pt": false,
			"staging.gov.pt":   false,
			"example.com":      false,
			"SAPO.PT":          true,
		}
		for name, want := range tests {
			if got := scope.Allows(name); got != want {
				t.Errorf("Allows(%q)\nwanted:\n%v\ngot:\n%v", name, want, got)
			}
		}
	})

	t.Run("should return an out of scope error", func(t *testing.T) {
		scope := NewScope(false)
		err := scope.Check("example.com")
		if !errors.Is(err, domain.ErrOutOfScope) || !domain.IsKind(err, domain.KindOutOfScope) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrOutOfScope, err)
		}
	})

	t.Run("should manage rules", func(t *testing.T) {
		scope := NewScope(false)
		if err := scope.AddRule(`example\.com$`, false); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if err := scope.AddRule(`example\.com$`, false); err == nil {
			t.Fatalf("\nwanted:\nduplicate rule error\ngot:\nnil")
		}
		if err := scope.AddRule(`(`, true); err == nil {
			t.Fatalf("\nwanted:\ninvalid regex error\ngot:\nnil")
		}
		if !scope.Allows("www.example.com") {
			t.Fatalf("\nwanted:\ntrue\ngot:\nfalse")
		}
		if err := scope.RemoveRule(`example\.com$`, false); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if scope.Allows("www.example.com") {
			t.Fatalf("\nwanted:\nfalse\ngot:\ntrue")
		}
		scope.AddRule(`.*`, true)
		scope.ClearRules()
		if len(scope.ExcludeRules) != 0 || len(scope.IncludeRules) != 0 {
			t.Fatalf("\nwanted:\nno rules\ngot:\n%d include %d exclude", len(scope.IncludeRules), len(scope.ExcludeRules))
		}
	})
}
