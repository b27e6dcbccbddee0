package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for broad classification.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidDomain = errors.New("invalid domain name")
	ErrOutOfScope    = errors.New("domain is out of scope")
	ErrRateLimited   = errors.New("rate limit exceeded")
)

// ErrorKind is a coarse-grained categorization for errors.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindInvalidDomain ErrorKind = "invalid_domain"
	KindOutOfScope    ErrorKind = "out_of_scope"
	KindRateLimited   ErrorKind = "rate_limited"
	KindInternal      ErrorKind = "internal"
)

// OpError wraps an underlying error with the operation that failed and its kind.
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether err is an OpError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf classifies err. Sentinels are recognised even when not wrapped in an OpError.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidDomain):
		return KindInvalidDomain
	case errors.Is(err, ErrOutOfScope):
		return KindOutOfScope
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	return KindInternal
}
