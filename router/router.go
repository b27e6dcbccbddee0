// Package router maps request paths to named views through an ordered route table.
//
// Patterns are made of literal segments and ":name" captures. A table is fixed
// once built and is matched in declaration order, the first matching route wins.
package router

import (
	"fmt"
	"net/url"
	"strings"
)

// Params holds the values captured by ":name" segments, already percent-decoded.
type Params map[string]string

// Route pairs a path pattern with the view it resolves to.
type Route struct {
	Name     string // Unique route name, used for reverse routing
	Pattern  string // Path pattern, e.g. "/details/:domainName"
	View     string // View identifier handed to the renderer
	segments []segment
}

// Match is the outcome of routing a single path.
type Match struct {
	Route  Route
	Params Params
}

// Table is an ordered, immutable list of routes.
type Table struct {
	routes []Route
}

// NewTable compiles the routes in the given order.
// It returns an error on an invalid pattern or a duplicate route name.
func NewTable(routes ...Route) (*Table, error) {
	names := make(map[string]bool, len(routes))
	compiled := make([]Route, len(routes))
	for i, route := range routes {
		if route.Name == "" {
			return nil, fmt.Errorf("route %d has no name", i)
		}
		if names[route.Name] {
			return nil, fmt.Errorf("duplicate route name %q", route.Name)
		}
		names[route.Name] = true

		segments, err := parsePattern(route.Pattern)
		if err != nil {
			return nil, err
		}
		route.segments = segments
		compiled[i] = route
	}
	return &Table{routes: compiled}, nil
}

// MustTable is like NewTable but panics on error. It is meant for static tables.
func MustTable(routes ...Route) *Table {
	table, err := NewTable(routes...)
	if err != nil {
		panic(err)
	}
	return table
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match routes an escaped request path. The empty path is treated as "/" and a single
// trailing slash is ignored. It returns false when no route matches.
func (t *Table) Match(path string) (Match, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return Match{}, false
	}

	for _, route := range t.routes {
		if params, ok := matchSegments(route.segments, parts); ok {
			return Match{Route: route, Params: params}, true
		}
	}
	return Match{}, false
}

// Path builds the escaped path of the named route with params filled in.
func (t *Table) Path(name string, params Params) (string, error) {
	for _, route := range t.routes {
		if route.Name != name {
			continue
		}
		if len(route.segments) == 0 {
			return "/", nil
		}

		var b strings.Builder
		for _, s := range route.segments {
			b.WriteByte('/')
			if !s.isParam() {
				b.WriteString(s.literal)
				continue
			}
			value, ok := params[s.param]
			if !ok || value == "" {
				return "", fmt.Errorf("route %q: missing parameter %q", name, s.param)
			}
			b.WriteString(url.PathEscape(value))
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unknown route %q", name)
}

// splitPath breaks an escaped path into decoded segments.
// It rejects relative paths, empty inner segments and invalid escapes.
func splitPath(path string) ([]string, bool) {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	if trimmed == "" {
		return []string{}, path == "/"
	}

	raw := strings.Split(trimmed, "/")
	parts := make([]string, len(raw))
	for i, part := range raw {
		if part == "" {
			return nil, false
		}
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return nil, false
		}
		parts[i] = decoded
	}
	return parts, true
}

func matchSegments(segments []segment, parts []string) (Params, bool) {
	if len(segments) != len(parts) {
		return nil, false
	}

	params := make(Params)
	for i, s := range segments {
		if s.isParam() {
			params[s.param] = parts[i]
			continue
		}
		if s.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}
