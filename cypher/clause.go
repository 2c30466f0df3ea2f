// Package cypher provides the parameterized query-string primitive and the
// Neo4j transport used by the pull compiler and the action engine.
package cypher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// validIdentifierRe validates Cypher identifiers (variables, labels,
// relationship types and property names).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier checks if the string is a valid Cypher identifier.
func IsValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Ident is an identifier spliced verbatim into the query text instead of
// being lifted into a parameter. Invalid identifiers fail the build.
type Ident string

// Labeled is implemented by values that resolve to a label expression at
// build time. vnode types satisfy it through their CypherLabels method;
// LabelExpr is the fixed-string implementation.
type Labeled interface {
	CypherLabels() string
}

// LabelExpr is a fixed label expression, e.g. "Movie:VNode".
type LabelExpr string

// CypherLabels implements Labeled.
func (l LabelExpr) CypherLabels() string { return string(l) }

// A Clause is a lazily built, parameterized query fragment: literal text
// with `{}` placeholders, each consumed by one argument. Ident and Labeled
// arguments are spliced as text; every other argument is lifted into a
// numbered query parameter when the clause is built.
type Clause struct {
	tmpl string
	args []any
}

// C returns a new clause from a template and its arguments.
func C(tmpl string, args ...any) *Clause {
	return &Clause{tmpl: tmpl, args: args}
}

// Build renders the clause with parameters named <prefix><n>, numbering
// from start. It returns the text, the allocated parameters, and the next
// unused number, so a caller composing several clauses can keep one shared
// parameter namespace.
func (c *Clause) Build(prefix string, start int) (string, map[string]any, int, error) {
	var sb strings.Builder
	params := make(map[string]any)
	n := start
	rest := c.tmpl
	argi := 0
	for {
		i := strings.Index(rest, "{}")
		if i < 0 {
			break
		}
		sb.WriteString(rest[:i])
		rest = rest[i+2:]
		if argi >= len(c.args) {
			return "", nil, start, fmt.Errorf("cypher: clause %q has more placeholders than arguments", c.tmpl)
		}
		switch a := c.args[argi].(type) {
		case Ident:
			if !IsValidIdentifier(string(a)) {
				return "", nil, start, fmt.Errorf("cypher: invalid identifier %q", string(a))
			}
			sb.WriteString(string(a))
		case Labeled:
			sb.WriteString(a.CypherLabels())
		default:
			name := prefix + strconv.Itoa(n)
			n++
			params[name] = a
			sb.WriteString("$" + name)
		}
		argi++
	}
	if argi != len(c.args) {
		return "", nil, start, fmt.Errorf("cypher: clause %q has %d unused arguments", c.tmpl, len(c.args)-argi)
	}
	sb.WriteString(rest)
	return sb.String(), params, n, nil
}

// Query renders the clause with the default parameter namespace ($p1...).
func (c *Clause) Query() (string, map[string]any, error) {
	text, params, _, err := c.Build("p", 1)
	return text, params, err
}
