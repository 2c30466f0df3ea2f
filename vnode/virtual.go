package vnode

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// VirtualKind tags the three kinds of virtual property. Every compilation
// site must match on it exhaustively.
type VirtualKind int

const (
	// VirtualToMany is a to-many relationship traversal producing a list.
	VirtualToMany VirtualKind = iota
	// VirtualToOne is a to-one relationship traversal producing at most one
	// record. Always nullable: the store does not enforce 1:1.
	VirtualToOne
	// VirtualExpr is a Cypher expression over the current node (and, inside
	// a relationship sub-request, the connecting relationship).
	VirtualExpr
)

// String returns the kind name.
func (k VirtualKind) String() string {
	switch k {
	case VirtualToMany:
		return "to-many"
	case VirtualToOne:
		return "to-one"
	case VirtualExpr:
		return "expression"
	default:
		return "unknown"
	}
}

// Virtual declares a property computed at query time from graph structure.
// Declarations are immutable once the owning type is registered.
type Virtual struct {
	Name string
	Kind VirtualKind

	// Pattern is the traversal for relationship kinds. @this stands for the
	// current node variable, @target for the target node variable, and the
	// optional @rel for the relationship variable, e.g.
	// "(@this)-[@rel:ACTED_IN]->(@target)".
	Pattern string

	// Target returns the target type for relationship kinds. The
	// indirection defers the lookup to use time; mutually referencing
	// types must still be populated in init rather than in their own
	// initializers, since references inside the closure count toward
	// initialization-order analysis.
	Target func() *Type

	// RelProperties names relationship-level properties that a to-many
	// sub-request may select as if they were fields of the target type.
	RelProperties []string

	// Expression is the Cypher expression for VirtualExpr, with @this and
	// @rel placeholders.
	Expression string

	// DefaultOrder optionally overrides the target type's default ordering
	// for a to-many traversal. May reference @this and @rel.
	DefaultOrder string
}

// check verifies the declaration is internally consistent.
func (v Virtual) check() error {
	if v.Name == "" {
		return fmt.Errorf("virtual property with empty name")
	}
	switch v.Kind {
	case VirtualToMany, VirtualToOne:
		if v.Target == nil {
			return fmt.Errorf("virtual property %q has no target type", v.Name)
		}
		if !strings.Contains(v.Pattern, "@this") || !strings.Contains(v.Pattern, "@target") {
			return fmt.Errorf("virtual property %q pattern must reference @this and @target", v.Name)
		}
		if v.Kind == VirtualToOne && len(v.RelProperties) > 0 {
			return fmt.Errorf("virtual property %q: relationship properties are only projected on to-many traversals", v.Name)
		}
		if len(v.RelProperties) > 0 && !strings.Contains(v.Pattern, "@rel") {
			return fmt.Errorf("virtual property %q projects relationship properties but its pattern has no @rel", v.Name)
		}
	case VirtualExpr:
		if v.Expression == "" {
			return fmt.Errorf("virtual property %q has no expression", v.Name)
		}
	default:
		return fmt.Errorf("virtual property %q has unknown kind %d", v.Name, v.Kind)
	}
	return nil
}

// Record is the read-only view of a fetched node's raw and virtual values
// that derived-property compute functions receive.
type Record interface {
	// Get returns the fetched value of the named property, or nil.
	Get(name string) any
	// Has reports whether the named property was fetched.
	Has(name string) bool
}

// Derived declares a property computed after query time from already-fetched
// data. Its dependencies are always fetched, even when the caller never
// requested them explicitly, but dependency-only fields never appear in the
// final result.
type Derived struct {
	Name string

	// Deps names the raw or virtual properties the compute function reads.
	Deps []string

	// Compute produces the derived value from a read-only record view.
	Compute func(Record) (any, error)
}

// DerivedCEL declares a derived property whose compute function is a CEL
// expression over the named dependencies. Invalid expressions panic at
// declaration time, like regexp.MustCompile.
func DerivedCEL(name, expr string, deps ...string) Derived {
	opts := make([]cel.EnvOption, 0, len(deps))
	for _, dep := range deps {
		opts = append(opts, cel.Variable(dep, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		panic(fmt.Sprintf("vnode: derived %q: %v", name, err))
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		panic(fmt.Sprintf("vnode: derived %q: %v", name, iss.Err()))
	}
	prg, err := env.Program(ast)
	if err != nil {
		panic(fmt.Sprintf("vnode: derived %q: %v", name, err))
	}
	return Derived{
		Name: name,
		Deps: deps,
		Compute: func(r Record) (any, error) {
			vars := make(map[string]any, len(deps))
			for _, dep := range deps {
				vars[dep] = r.Get(dep)
			}
			out, _, err := prg.Eval(vars)
			if err != nil {
				return nil, fmt.Errorf("vnode: derived %q: %w", name, err)
			}
			return out.Value(), nil
		},
	}
}
