package router

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// patternAST is the parsed form of a route pattern such as "/details/:domainName".
type patternAST struct {
	Segments []*segmentAST `Slash ( @@ ( Slash @@ )* )?`
}

type segmentAST struct {
	Param   string `  Colon @Ident`
	Literal string `| @Ident`
}

// segment is a compiled pattern segment, either a literal or a named capture.
type segment struct {
	literal string
	param   string
}

func (s segment) isParam() bool {
	return s.param != ""
}

var patternParser = participle.MustBuild[patternAST](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{"Slash", `/`},
		{"Colon", `:`},
		{"Ident", `[A-Za-z0-9_.~%-]+`},
	})),
)

// parsePattern compiles a route pattern into its segments.
// The root pattern "/" has no segments.
func parsePattern(pattern string) ([]segment, error) {
	ast, err := patternParser.ParseString("", pattern)
	if err != nil {
		return nil, fmt.Errorf("parsing route pattern %q : %w", pattern, err)
	}

	segments := make([]segment, len(ast.Segments))
	seen := make(map[string]bool)
	for i, s := range ast.Segments {
		if s.Param != "" {
			if seen[s.Param] {
				return nil, fmt.Errorf("parsing route pattern %q : duplicate parameter %q", pattern, s.Param)
			}
			seen[s.Param] = true
		}
		segments[i] = segment{literal: s.Literal, param: s.Param}
	}
	return segments, nil
}
