// Package where provides composable, injection-safe predicates for filtering
// pulled nodes. A predicate tree renders to one parameterized clause, with
// @this standing for the root node variable:
//
//	pull.WithWhere(where.And(
//		where.FieldGT("year", 2000),
//		where.Not(where.FieldEQ("title", "Gattaca")),
//	).Clause())
//
// Field and relationship names are validated as identifiers when the clause
// is built; values travel as query parameters, never as text.
package where

import (
	"strconv"
	"strings"

	"github.com/syssam/vgraph/cypher"
)

// P is a predicate over one node. Predicates are immutable and freely
// composable.
type P struct {
	fragment func(node string, n *int) (string, []any)
}

// Clause renders the predicate as a parameterized clause over @this.
func (p P) Clause() *cypher.Clause {
	n := 0
	text, args := p.fragment("@this", &n)
	return cypher.C(text, args...)
}

// Negate returns the negation of the predicate.
func (p P) Negate() P { return Not(p) }

// And combines predicates conjunctively.
func And(ps ...P) P { return join(" AND ", ps) }

// Or combines predicates disjunctively.
func Or(ps ...P) P { return join(" OR ", ps) }

func join(sep string, ps []P) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		if len(ps) == 1 {
			return ps[0].fragment(node, n)
		}
		parts := make([]string, len(ps))
		var args []any
		for i, p := range ps {
			text, a := p.fragment(node, n)
			parts[i] = text
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, sep) + ")", args
	}}
}

// Not negates a predicate.
func Not(p P) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		text, args := p.fragment(node, n)
		return "NOT (" + text + ")", args
	}}
}

func binary(name, op string, v any) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return node + ".{} " + op + " {}", []any{cypher.Ident(name), v}
	}}
}

// FieldEQ matches nodes whose property equals v.
func FieldEQ(name string, v any) P { return binary(name, "=", v) }

// FieldNEQ matches nodes whose property differs from v.
func FieldNEQ(name string, v any) P { return binary(name, "<>", v) }

// FieldGT matches nodes whose property is greater than v.
func FieldGT(name string, v any) P { return binary(name, ">", v) }

// FieldGTE matches nodes whose property is at least v.
func FieldGTE(name string, v any) P { return binary(name, ">=", v) }

// FieldLT matches nodes whose property is less than v.
func FieldLT(name string, v any) P { return binary(name, "<", v) }

// FieldLTE matches nodes whose property is at most v.
func FieldLTE(name string, v any) P { return binary(name, "<=", v) }

// FieldContains matches string properties containing substr.
func FieldContains(name, substr string) P { return binary(name, "CONTAINS", substr) }

// FieldHasPrefix matches string properties starting with prefix.
func FieldHasPrefix(name, prefix string) P { return binary(name, "STARTS WITH", prefix) }

// FieldHasSuffix matches string properties ending with suffix.
func FieldHasSuffix(name, suffix string) P { return binary(name, "ENDS WITH", suffix) }

// FieldIn matches nodes whose property is one of vs.
func FieldIn(name string, vs ...any) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return node + ".{} IN {}", []any{cypher.Ident(name), vs}
	}}
}

// FieldNotIn matches nodes whose property is none of vs.
func FieldNotIn(name string, vs ...any) P { return Not(FieldIn(name, vs...)) }

// FieldNil matches nodes missing the property.
func FieldNil(name string) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return node + ".{} IS NULL", []any{cypher.Ident(name)}
	}}
}

// FieldNotNil matches nodes carrying the property.
func FieldNotNil(name string) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return node + ".{} IS NOT NULL", []any{cypher.Ident(name)}
	}}
}

// FieldEqualFold matches string properties equal to v, case-insensitively.
func FieldEqualFold(name, v string) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return "toLower(" + node + ".{}) = toLower({})", []any{cypher.Ident(name), v}
	}}
}

// FieldContainsFold matches string properties containing substr,
// case-insensitively.
func FieldContainsFold(name, substr string) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return "toLower(" + node + ".{}) CONTAINS toLower({})", []any{cypher.Ident(name), substr}
	}}
}

// HasRel matches nodes with at least one outgoing relationship of the given
// type.
func HasRel(relType string) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		return "EXISTS { MATCH (" + node + ")-[:{}]->() }", []any{cypher.Ident(relType)}
	}}
}

// HasRelWith matches nodes with at least one outgoing relationship of the
// given type to a node satisfying p; inside p, @this stands for that target
// node.
func HasRelWith(relType string, p P) P {
	return P{fragment: func(node string, n *int) (string, []any) {
		*n++
		inner := "_w" + strconv.Itoa(*n)
		text, args := p.fragment(inner, n)
		return "EXISTS { MATCH (" + node + ")-[:{}]->(" + inner + ") WHERE " + text + " }",
			append([]any{cypher.Ident(relType)}, args...)
	}}
}
