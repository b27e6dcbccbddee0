package check

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
)

// Rule is a single scope rule matched against the domain name.
type Rule struct {
	Pattern *regexp.Regexp
}

// Scope represents the inclusion/exclusion rules and the default behaviour for domains
// that match no rule. Exclusions win over inclusions.
type Scope struct {
	IncludeRules map[string]Rule // keyed by pattern
	ExcludeRules map[string]Rule // keyed by pattern
	DefaultAllow bool
}

func NewScope(defaultAllow bool) *Scope {
	return &Scope{
		IncludeRules: make(map[string]Rule),
		ExcludeRules: make(map[string]Rule),
		DefaultAllow: defaultAllow,
	}
}

// NewScopeFromRules builds a scope from configuration. A pattern prefixed with "-" in include is
// treated as an exclusion. The scope allows everything by default unless include rules exist.
func NewScopeFromRules(include, exclude []string) (*Scope, error) {
	scope := NewScope(true)
	for _, pattern := range include {
		isExclude := strings.HasPrefix(pattern, "-")
		if !isExclude {
			scope.DefaultAllow = false
		}
		if err := scope.AddRule(pattern, isExclude); err != nil {
			return nil, err
		}
	}
	for _, pattern := range exclude {
		if err := scope.AddRule(pattern, true); err != nil {
			return nil, err
		}
	}
	return scope, nil
}

// Allows reports whether the domain may be probed.
func (s *Scope) Allows(name string) bool {
	if s == nil {
		return true
	}
	name = strings.ToLower(name)

	for _, rule := range s.ExcludeRules {
		if rule.Pattern.MatchString(name) {
			return false
		}
	}
	for _, rule := range s.IncludeRules {
		if rule.Pattern.MatchString(name) {
			return true
		}
	}
	return s.DefaultAllow
}

// Check returns an ErrOutOfScope error when the domain is not allowed.
func (s *Scope) Check(name string) error {
	if s.Allows(name) {
		return nil
	}
	return &domain.OpError{
		Op:   "check scope",
		Kind: domain.KindOutOfScope,
		Err:  fmt.Errorf("%s : %w", name, domain.ErrOutOfScope),
	}
}

// AddRule adds a rule to the scope, a leading "-" on the pattern is ignored.
func (s *Scope) AddRule(pattern string, exclude bool) error {
	compiled, err := regexp.Compile(strings.TrimPrefix(pattern, "-"))
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	key := compiled.String()

	rules := s.IncludeRules
	if exclude {
		rules = s.ExcludeRules
	}
	if _, exists := rules[key]; exists {
		return fmt.Errorf("rule %q already exists", key)
	}
	rules[key] = Rule{Pattern: compiled}
	return nil
}
