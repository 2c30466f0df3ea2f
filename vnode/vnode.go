// Package vnode declares and validates the node types governed by the
// framework: their labels, property schemas, relationships, and virtual and
// derived properties.
package vnode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/vnode/field"
)

// VNID is the immutable, system-generated identifier of a node.
type VNID = string

// Labels reserved by the framework.
const (
	// LabelVNode is the generic graph-membership label carried by every
	// live node governed by the framework.
	LabelVNode = "VNode"

	// LabelDeleted marks a soft-deleted node. A node never carries both
	// LabelVNode and LabelDeleted.
	LabelDeleted = "DeletedVNode"

	// LabelSlug is the label of the server-side slug history nodes that
	// an IDENTIFIES relationship points from.
	LabelSlug = "SlugId"

	// LabelAction is the label of persisted action records.
	LabelAction = "Action"

	// LabelUser is the label of acting-identity nodes.
	LabelUser = "User"
)

// Relationship types reserved by the framework.
const (
	RelIdentifies  = "IDENTIFIES"
	RelPerformedBy = "PERFORMED_BY"
	RelModified    = "MODIFIED"
	RelReverted    = "REVERTED"
)

// NewVNID returns a fresh system-generated node identifier.
func NewVNID() VNID {
	return uuid.NewString()
}

// IsVNID reports whether s has the fixed format of a system-generated
// identifier, as opposed to a human-assigned slug.
func IsVNID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Cardinality describes how many targets a declared relationship allows.
type Cardinality int

// Relationship cardinalities.
const (
	ToOneRequired Cardinality = iota
	ToOneOrNone
	ToMany
	ToManyUnique
)

// Relationship declares an outgoing relationship of a node type.
type Relationship struct {
	Type        string   // Relationship type, e.g. "ACTED_IN"
	To          []string // Allowed target type labels
	Cardinality Cardinality
	Properties  []field.Definition // Relationship-level properties
}

// Type declares a node type: its unique label, optional parent type, ordered
// property schema, relationships, virtual and derived properties, and the
// default ordering applied when a pull does not specify one.
type Type struct {
	Label         string
	Extends       *Type // Parent type; all ancestor labels must be present on stored nodes
	Properties    []field.Definition
	Relationships []Relationship
	Virtual       []Virtual
	Derived       []Derived

	// DefaultOrder is a Cypher order expression with @this standing for
	// the node variable, e.g. "@this.name" or "@this.year DESC".
	DefaultOrder string
}

// PropertyNames returns the declared property names in schema order.
func (t *Type) PropertyNames() []string {
	names := make([]string, len(t.Properties))
	for i, p := range t.Properties {
		names[i] = p.Descriptor().Name
	}
	return names
}

// Property returns the descriptor for the named property, or nil.
func (t *Type) Property(name string) *field.Descriptor {
	for _, p := range t.Properties {
		if d := p.Descriptor(); d.Name == name {
			return d
		}
	}
	return nil
}

// Ancestors returns the labels of the parent chain, nearest first.
func (t *Type) Ancestors() []string {
	var labels []string
	for p := t.Extends; p != nil; p = p.Extends {
		labels = append(labels, p.Label)
	}
	return labels
}

// Labels returns every label a live node of this type must carry: the
// concrete label, all ancestor labels, and the generic VNode label.
func (t *Type) Labels() []string {
	return append(append([]string{t.Label}, t.Ancestors()...), LabelVNode)
}

// CypherLabels renders the full label expression of a live node of this
// type, e.g. "Dog:Animal:VNode". It satisfies cypher.Labeled, so a type can
// be spliced into a clause as a label expression.
func (t *Type) CypherLabels() string {
	return strings.Join(t.Labels(), ":")
}

// VirtualByName returns the named virtual property declaration.
func (t *Type) VirtualByName(name string) (Virtual, bool) {
	for _, v := range t.Virtual {
		if v.Name == name {
			return v, true
		}
	}
	return Virtual{}, false
}

// DerivedByName returns the named derived property declaration.
func (t *Type) DerivedByName(name string) (Derived, bool) {
	for _, d := range t.Derived {
		if d.Name == name {
			return d, true
		}
	}
	return Derived{}, false
}

// Relationship returns the declared relationship with the given type name.
func (t *Type) Relationship(relType string) (Relationship, bool) {
	for _, r := range t.Relationships {
		if r.Type == relType {
			return r, true
		}
	}
	return Relationship{}, false
}

// patternRel extracts the relationship type of a traversal pattern and
// whether the pattern leaves @this along an outgoing arrow.
func patternRel(pattern string) (relType string, outgoing bool) {
	i := strings.Index(pattern, "[")
	j := strings.Index(pattern, "]")
	if i < 0 || j < i {
		return "", false
	}
	inside := pattern[i+1 : j]
	if k := strings.Index(inside, ":"); k >= 0 {
		relType = inside[k+1:]
	}
	return relType, strings.HasPrefix(pattern, "(@this)-[")
}

// checkRelationship verifies an outgoing relationship traversal against the
// type's declared relationships: the relationship type, its cardinality, the
// allowed target labels, and the projected relationship-level properties.
// Types that declare no relationships skip the check; incoming traversals
// belong to the declaring side.
func (t *Type) checkRelationship(v Virtual) error {
	if len(t.Relationships) == 0 {
		return nil
	}
	if v.Kind != VirtualToMany && v.Kind != VirtualToOne {
		return nil
	}
	relType, outgoing := patternRel(v.Pattern)
	if !outgoing || relType == "" {
		return nil
	}
	rel, ok := t.Relationship(relType)
	if !ok {
		return fmt.Errorf("virtual property %q traverses undeclared relationship %s", v.Name, relType)
	}
	switch v.Kind {
	case VirtualToOne:
		if rel.Cardinality != ToOneRequired && rel.Cardinality != ToOneOrNone {
			return fmt.Errorf("virtual property %q is to-one but relationship %s is declared to-many", v.Name, relType)
		}
	case VirtualToMany:
		if rel.Cardinality != ToMany && rel.Cardinality != ToManyUnique {
			return fmt.Errorf("virtual property %q is to-many but relationship %s is declared to-one", v.Name, relType)
		}
	}
	if len(rel.To) > 0 {
		target := v.Target().Label
		allowed := false
		for _, l := range rel.To {
			if l == target {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("virtual property %q targets %s, which relationship %s does not allow", v.Name, target, relType)
		}
	}
	for _, name := range v.RelProperties {
		declared := false
		for _, p := range rel.Properties {
			if p.Descriptor().Name == name {
				declared = true
				break
			}
		}
		if !declared {
			return fmt.Errorf("virtual property %q projects undeclared property %q of relationship %s", v.Name, name, relType)
		}
	}
	return nil
}

// Registry holds the set of registered node types, keyed by label.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry returns an empty type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds node types to the registry. A type's parent must be
// registered before (or together with, in order) the type itself, and labels
// must be unique.
func (r *Registry) Register(ts ...*Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if t.Label == "" {
			return fmt.Errorf("vnode: cannot register a type with an empty label")
		}
		if _, ok := r.types[t.Label]; ok {
			return fmt.Errorf("vnode: type %q is already registered", t.Label)
		}
		if t.Extends != nil {
			if _, ok := r.types[t.Extends.Label]; !ok {
				return fmt.Errorf("vnode: type %q extends unregistered type %q", t.Label, t.Extends.Label)
			}
		}
		for _, v := range t.Virtual {
			if err := v.check(); err != nil {
				return fmt.Errorf("vnode: type %q: %w", t.Label, err)
			}
			if err := t.checkRelationship(v); err != nil {
				return fmt.Errorf("vnode: type %q: %w", t.Label, err)
			}
		}
		r.types[t.Label] = t
	}
	return nil
}

// Type returns the registered type with the given label.
func (r *Registry) Type(label string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[label]
	return t, ok
}

// RawNode is the snapshot of a stored node used during validation: its
// identifier, current labels, and current properties.
type RawNode struct {
	ID     VNID
	Labels []string
	Props  map[string]any
}

// HasLabel reports whether the node carries the given label.
func (n RawNode) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// SoftDeleted reports whether the node carries the soft-delete marker
// without the live marker.
func (n RawNode) SoftDeleted() bool {
	return n.HasLabel(LabelDeleted) && !n.HasLabel(LabelVNode)
}

// Validate checks a live node against every registered type whose label it
// carries: label count, marker exclusivity, materialized label inheritance,
// and the per-property schema. The first violation is returned with the
// offending field or label named.
func (r *Registry) Validate(n RawNode) error {
	if n.HasLabel(LabelVNode) && n.HasLabel(LabelDeleted) {
		return vgraph.NewValidationError(labelOf(n), LabelDeleted,
			fmt.Errorf("node %s carries both the live and soft-deleted markers", n.ID))
	}
	if len(n.Labels) < 2 {
		return vgraph.NewValidationError(labelOf(n), "",
			fmt.Errorf("node %s must carry the %s label and at least one type label", n.ID, LabelVNode))
	}
	for _, label := range n.Labels {
		t, ok := r.Type(label)
		if !ok {
			continue
		}
		for _, ancestor := range t.Ancestors() {
			if !n.HasLabel(ancestor) {
				return vgraph.NewValidationError(label, ancestor,
					fmt.Errorf("node %s is missing inherited label %s", n.ID, ancestor))
			}
		}
		for _, p := range t.Properties {
			d := p.Descriptor()
			if err := d.Validate(n.Props[d.Name]); err != nil {
				return vgraph.NewValidationError(label, d.Name, err)
			}
		}
	}
	return nil
}

// labelOf picks a representative type label for error reporting.
func labelOf(n RawNode) string {
	for _, l := range n.Labels {
		if l != LabelVNode && l != LabelDeleted {
			return l
		}
	}
	return LabelVNode
}
