// Package pull implements the declarative read side of the framework: an
// immutable data-request model and the compiler that turns a request tree
// into one Cypher query plus post-query evaluation of derived properties.
package pull

import (
	"sort"
	"strings"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/vnode"
)

// rawEntry is one requested raw property, optionally gated by a flag.
type rawEntry struct {
	name string
	flag string // empty = unconditional
}

// virtualEntry is one requested virtual property. sub is set for
// relationship kinds and nil for expression kinds.
type virtualEntry struct {
	name string
	flag string
	sub  *Request
	// relProp marks a pseudo-virtual projection of a relationship-level
	// property, available only inside a to-many sub-request.
	relProp bool
}

// derivedEntry is one requested derived property.
type derivedEntry struct {
	name string
	flag string
}

// A Request is an immutable specification of which raw, virtual, and derived
// properties of a node type are wanted. Every With* method returns a new
// value; a partially built request can safely seed multiple branches.
//
// Construction errors (duplicate or conflicting inclusions) are sticky:
// they are recorded on the returned request and surfaced by Err and by
// Compile, never deferred silently.
type Request struct {
	Type *vnode.Type

	raw     []rawEntry
	virtual []virtualEntry
	derived []derivedEntry

	// hidden marks properties fetched only as derived-property
	// dependencies; they are stripped from the final result.
	hidden map[string]bool

	// relProps names relationship-level properties selectable in this
	// sub-request, per the owning to-many declaration.
	relProps []string

	// origin identifies the seed request a sub-request builder was handed;
	// every descendant of the seed carries it, so the builder's return
	// value can be verified to descend from that seed.
	origin *Request

	err error
}

// NewRequest returns an empty request for the given node type.
func NewRequest(t *vnode.Type) *Request {
	return &Request{Type: t}
}

// Err returns the first construction error, if any.
func (r *Request) Err() error {
	return r.err
}

// clone returns a copy sharing no mutable state with the original.
func (r *Request) clone() *Request {
	c := &Request{Type: r.Type, relProps: r.relProps, origin: r.origin, err: r.err}
	c.raw = append([]rawEntry(nil), r.raw...)
	c.virtual = append([]virtualEntry(nil), r.virtual...)
	c.derived = append([]derivedEntry(nil), r.derived...)
	if r.hidden != nil {
		c.hidden = make(map[string]bool, len(r.hidden))
		for k, v := range r.hidden {
			c.hidden[k] = v
		}
	}
	return c
}

// fail returns a copy carrying the construction error.
func (r *Request) fail(prop, reason string) *Request {
	c := r.clone()
	c.err = vgraph.NewRequestError(prop, reason)
	return c
}

// unhide promotes a dependency-only property to an explicitly requested one.
func (r *Request) unhide(name string) *Request {
	c := r.clone()
	delete(c.hidden, name)
	return c
}

// rawIndex returns the position of name in the raw entries, or -1.
func (r *Request) rawIndex(name string) int {
	for i, e := range r.raw {
		if e.name == name {
			return i
		}
	}
	return -1
}

// virtualIndex returns the position of name in the virtual entries, or -1.
func (r *Request) virtualIndex(name string) int {
	for i, e := range r.virtual {
		if e.name == name {
			return i
		}
	}
	return -1
}

// isRelProp reports whether name is a relationship-level property exposed
// to this sub-request.
func (r *Request) isRelProp(name string) bool {
	for _, p := range r.relProps {
		if p == name {
			return true
		}
	}
	return false
}

// With includes raw properties unconditionally. Including an already
// unconditionally included property is a no-op; including one that is
// conditionally included is an error. Inside a to-many sub-request, With
// also accepts the relationship-level properties projected by the owning
// declaration.
func (r *Request) With(props ...string) *Request {
	if r.err != nil {
		return r
	}
	out := r
	for _, p := range props {
		out = out.withOne(p)
		if out.err != nil {
			return out
		}
	}
	return out
}

func (r *Request) withOne(name string) *Request {
	if r.hidden[name] {
		return r.unhide(name)
	}
	if r.isRelProp(name) {
		if i := r.virtualIndex(name); i >= 0 {
			if r.virtual[i].flag == "" {
				return r
			}
			return r.fail(name, "already requested conditionally")
		}
		c := r.clone()
		c.virtual = append(c.virtual, virtualEntry{name: name, relProp: true})
		return c
	}
	if r.Type.Property(name) == nil {
		return r.fail(name, "not a declared property of "+r.Type.Label)
	}
	if i := r.rawIndex(name); i >= 0 {
		if r.raw[i].flag == "" {
			return r // idempotent
		}
		return r.fail(name, "already requested conditionally")
	}
	c := r.clone()
	c.raw = append(c.raw, rawEntry{name: name})
	return c
}

// WithFlag includes a raw property conditionally on the named flag. A
// property already unconditionally included, or conditionally included under
// a different flag, is an error.
func (r *Request) WithFlag(name, flag string) *Request {
	if r.err != nil {
		return r
	}
	if flag == "" {
		return r.fail(name, "conditional inclusion requires a flag name")
	}
	if r.Type.Property(name) == nil {
		return r.fail(name, "not a declared property of "+r.Type.Label)
	}
	if i := r.rawIndex(name); i >= 0 {
		switch r.raw[i].flag {
		case flag:
			return r // idempotent
		case "":
			return r.fail(name, "already requested unconditionally")
		default:
			return r.fail(name, "requested based on two different flags")
		}
	}
	c := r.clone()
	c.raw = append(c.raw, rawEntry{name: name, flag: flag})
	return c
}

// WithAll includes every not-yet-included raw property. Already selected
// properties keep their original selection order; the rest follow in
// type-declaration order.
func (r *Request) WithAll() *Request {
	if r.err != nil {
		return r
	}
	c := r.clone()
	for _, name := range r.Type.PropertyNames() {
		if c.rawIndex(name) < 0 {
			c.raw = append(c.raw, rawEntry{name: name})
		}
		delete(c.hidden, name)
	}
	return c
}

// WithVirtual includes a virtual property. For relationship kinds, build
// receives a fresh sub-request for the target type and must return a request
// built from it; for expression kinds build must be nil. Requesting the same
// virtual property twice is an error.
func (r *Request) WithVirtual(name string, build func(*Request) *Request) *Request {
	return r.withVirtual(name, "", build)
}

// WithVirtualFlag is WithVirtual gated on the named flag.
func (r *Request) WithVirtualFlag(name, flag string, build func(*Request) *Request) *Request {
	if flag == "" {
		return r.fail(name, "conditional inclusion requires a flag name")
	}
	return r.withVirtual(name, flag, build)
}

func (r *Request) withVirtual(name, flag string, build func(*Request) *Request) *Request {
	if r.err != nil {
		return r
	}
	if r.hidden[name] {
		return r.unhide(name)
	}
	if r.isRelProp(name) {
		if r.virtualIndex(name) >= 0 {
			return r.fail(name, "requested twice")
		}
		if build != nil {
			return r.fail(name, "relationship properties take no sub-request")
		}
		c := r.clone()
		c.virtual = append(c.virtual, virtualEntry{name: name, flag: flag, relProp: true})
		return c
	}
	v, ok := r.Type.VirtualByName(name)
	if !ok {
		return r.fail(name, "not a declared virtual property of "+r.Type.Label)
	}
	if r.virtualIndex(name) >= 0 {
		return r.fail(name, "requested twice")
	}
	var sub *Request
	switch v.Kind {
	case vnode.VirtualToMany, vnode.VirtualToOne:
		if build == nil {
			return r.fail(name, "relationship virtual properties require a sub-request builder")
		}
		seed := NewRequest(v.Target())
		seed.origin = seed
		if v.Kind == vnode.VirtualToMany {
			seed.relProps = v.RelProperties
		}
		sub = build(seed)
		// A foreign request of the right type still lacks the seed's
		// relationship-property scope, so descent is checked, not the type.
		if sub == nil || sub.origin != seed {
			return r.fail(name, "sub-request must be built from the provided base")
		}
		if sub.err != nil {
			c := r.clone()
			c.err = sub.err
			return c
		}
	case vnode.VirtualExpr:
		if build != nil {
			return r.fail(name, "expression virtual properties take no sub-request")
		}
	}
	c := r.clone()
	c.virtual = append(c.virtual, virtualEntry{name: name, flag: flag, sub: sub})
	return c
}

// cacheShape folds everything that changes the post-query result shape
// without reaching the compiled query text into a deterministic string:
// requested derived properties and their flags, hidden dependency-only
// fields, the active flags, and the shape of every nested sub-request.
func (r *Request) cacheShape(flags []string) string {
	var sb strings.Builder
	r.writeShape(&sb)
	if len(flags) > 0 {
		sorted := append([]string(nil), flags...)
		sort.Strings(sorted)
		sb.WriteString("|f:" + strings.Join(sorted, ","))
	}
	return sb.String()
}

func (r *Request) writeShape(sb *strings.Builder) {
	for _, e := range r.derived {
		sb.WriteString("|d:" + e.name)
		if e.flag != "" {
			sb.WriteString("?" + e.flag)
		}
	}
	hidden := make([]string, 0, len(r.hidden))
	for name := range r.hidden {
		hidden = append(hidden, name)
	}
	sort.Strings(hidden)
	for _, name := range hidden {
		sb.WriteString("|h:" + name)
	}
	for _, e := range r.virtual {
		if e.sub == nil {
			continue
		}
		sb.WriteString("|v:" + e.name + "(")
		e.sub.writeShape(sb)
		sb.WriteString(")")
	}
}

// WithDerived includes a derived property and unions in its declared
// dependencies; dependency-only fields are fetched but stripped from the
// final result. A derived property may be requested at most once.
func (r *Request) WithDerived(name string) *Request {
	return r.withDerived(name, "")
}

// WithDerivedFlag is WithDerived gated on the named flag.
func (r *Request) WithDerivedFlag(name, flag string) *Request {
	if flag == "" {
		return r.fail(name, "conditional inclusion requires a flag name")
	}
	return r.withDerived(name, flag)
}

func (r *Request) withDerived(name, flag string) *Request {
	if r.err != nil {
		return r
	}
	d, ok := r.Type.DerivedByName(name)
	if !ok {
		return r.fail(name, "not a declared derived property of "+r.Type.Label)
	}
	for _, e := range r.derived {
		if e.name == name {
			return r.fail(name, "requested twice")
		}
	}
	c := r.clone()
	c.derived = append(c.derived, derivedEntry{name: name, flag: flag})
	for _, dep := range d.Deps {
		if c.rawIndex(dep) >= 0 || c.virtualIndex(dep) >= 0 {
			continue // already requested explicitly; stays visible
		}
		switch {
		case c.Type.Property(dep) != nil:
			c.raw = append(c.raw, rawEntry{name: dep})
		default:
			v, ok := c.Type.VirtualByName(dep)
			if !ok {
				return r.fail(name, "dependency "+dep+" is not a declared property")
			}
			var sub *Request
			if v.Kind != vnode.VirtualExpr {
				seed := NewRequest(v.Target())
				if v.Kind == vnode.VirtualToMany {
					seed.relProps = v.RelProperties
				}
				sub = seed.WithAll()
			}
			c.virtual = append(c.virtual, virtualEntry{name: dep, sub: sub})
		}
		if c.hidden == nil {
			c.hidden = make(map[string]bool)
		}
		c.hidden[dep] = true
	}
	return c
}
