package pull

import (
	"strconv"
	"strings"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
	"github.com/syssam/vgraph/vnode"
	"github.com/syssam/vgraph/vnode/field"
)

// Filter scopes a compiled pull.
type Filter struct {
	// Key looks the root node up by its system-generated identifier or,
	// when the value does not have the identifier format, by slug
	// (transparently matching reassigned historical slugs).
	Key string

	// Where is an additional filter clause; @this stands for the root
	// variable. Its parameters are renamed into the compiler's own
	// numbered namespace.
	Where *cypher.Clause

	// OrderBy overrides the root type's default ordering; @this stands for
	// the root variable.
	OrderBy string

	// Flags activates conditionally included fields. A field gated on an
	// inactive flag is compiled exactly as if it had never been requested.
	Flags []string
}

// Compile turns a data request plus filter into one Cypher query and its
// parameters. The emitted text is deterministic: identical input produces
// identical variable names and clause order.
func Compile(r *Request, f Filter) (string, map[string]any, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	c := &compiler{
		params:  make(map[string]any),
		paramN:  1,
		used:    map[string]bool{rootVar: true},
		pending: make(map[string]bool),
		flags:   make(map[string]bool, len(f.Flags)),
	}
	for _, fl := range f.Flags {
		c.flags[fl] = true
	}

	label := r.Type.Label + ":" + vnode.LabelVNode
	switch {
	case f.Key == "":
		c.line("MATCH (" + rootVar + ":" + label + ")")
	case vnode.IsVNID(f.Key):
		c.line("MATCH (" + rootVar + ":" + label + " {id: " + c.param(f.Key) + "})")
	default:
		slug := field.NormalizeSlug(f.Key)
		c.line("MATCH (" + rootVar + ":" + label + ")<-[:" + vnode.RelIdentifies +
			"]-(:" + vnode.LabelSlug + " {slug: " + c.param(slug) + "})")
	}
	if f.Where != nil {
		text, params, next, err := f.Where.Build("p", c.paramN)
		if err != nil {
			return "", nil, err
		}
		for name, v := range params {
			c.params[name] = v
		}
		c.paramN = next
		c.line("WHERE " + strings.ReplaceAll(text, "@this", rootVar))
	}

	entries, _, err := c.compileLevel(r, rootVar, "", []string{rootVar})
	if err != nil {
		return "", nil, err
	}

	var items []string
	for _, e := range entries {
		if e.res == "" {
			items = append(items, rootVar+"."+e.name+" AS "+e.name)
		} else {
			items = append(items, e.res+" AS "+e.name)
			c.consume(e.res)
		}
	}
	if len(items) == 0 {
		c.line("RETURN null AS _")
	} else {
		c.line("RETURN " + strings.Join(items, ", "))
	}

	order := f.OrderBy
	if order == "" {
		order = r.Type.DefaultOrder
	}
	if order != "" {
		c.line("ORDER BY " + strings.ReplaceAll(order, "@this", rootVar))
	}

	for v := range c.pending {
		return "", nil, vgraph.NewInternalError("working variable %s was never consumed", v)
	}
	return strings.Join(c.lines, "\n"), c.params, nil
}

// rootVar is the working variable of the root node.
const rootVar = "_node"

// compiler holds the single-query compilation state: emitted lines, the
// shared parameter namespace, and the collision-free variable generator.
type compiler struct {
	lines   []string
	params  map[string]any
	paramN  int
	used    map[string]bool
	pending map[string]bool
	flags   map[string]bool
}

func (c *compiler) line(s string) {
	c.lines = append(c.lines, s)
}

// param lifts a value into the numbered parameter namespace and returns its
// placeholder.
func (c *compiler) param(v any) string {
	name := "p" + strconv.Itoa(c.paramN)
	c.paramN++
	c.params[name] = v
	return "$" + name
}

// newVar allocates an unused working variable named _<lowercase base><n>,
// incrementing n until unused, and tracks it for the consumption check.
func (c *compiler) newVar(base string) string {
	base = "_" + strings.ToLower(base)
	for n := 1; ; n++ {
		v := base + strconv.Itoa(n)
		if !c.used[v] {
			c.used[v] = true
			c.pending[v] = true
			return v
		}
	}
}

func (c *compiler) consume(vars ...string) {
	for _, v := range vars {
		delete(c.pending, v)
	}
}

// projEntry is one projection item of a request level. res is empty for a
// raw property of the level's node; otherwise it is the variable or
// expression holding the value.
type projEntry struct {
	name string
	res  string
}

// compileLevel compiles every included virtual property of r (in request
// order, honoring flags) against the node variable thisVar, and returns the
// level's projection entries plus the scope extended with expression result
// variables. relVar is the connecting relationship variable when this level
// is the sub-request of a relationship traversal.
func (c *compiler) compileLevel(r *Request, thisVar, relVar string, scope []string) ([]projEntry, []string, error) {
	var entries []projEntry
	for _, e := range r.raw {
		if e.flag != "" && !c.flags[e.flag] {
			continue
		}
		entries = append(entries, projEntry{name: e.name})
	}
	for _, e := range r.virtual {
		if e.flag != "" && !c.flags[e.flag] {
			continue
		}
		if e.relProp {
			if relVar == "" {
				return nil, nil, vgraph.NewInternalError("relationship property %s projected outside a relationship scope", e.name)
			}
			entries = append(entries, projEntry{name: e.name, res: relVar + "." + e.name})
			continue
		}
		v, ok := r.Type.VirtualByName(e.name)
		if !ok {
			return nil, nil, vgraph.NewInternalError("virtual property %s vanished from type %s", e.name, r.Type.Label)
		}
		res, err := c.compileVirtual(e, v, thisVar, relVar, scope)
		if err != nil {
			return nil, nil, err
		}
		scope = append(scope, res)
		entries = append(entries, projEntry{name: e.name, res: res})
	}
	return entries, scope, nil
}

// compileVirtual compiles one non-pseudo virtual property and returns the
// variable holding its value.
func (c *compiler) compileVirtual(e virtualEntry, v vnode.Virtual, thisVar, relVar string, scope []string) (string, error) {
	switch v.Kind {
	case vnode.VirtualToMany, vnode.VirtualToOne:
		return c.compileTraversal(e, v, thisVar, scope)
	case vnode.VirtualExpr:
		return c.compileExpr(e.name, v.Expression, thisVar, relVar, scope)
	default:
		return "", vgraph.NewInternalError("virtual property %s has unknown kind %d", e.name, v.Kind)
	}
}

// compileTraversal compiles a to-many or to-one relationship virtual
// property: an optional pattern match, the target's own sub-request, the
// pre-aggregation ordering (to-many only), and the collapse of the matched
// rows into one list- or record-valued variable scoped to the parent.
func (c *compiler) compileTraversal(e virtualEntry, v vnode.Virtual, thisVar string, scope []string) (string, error) {
	target := v.Target()
	targetVar := c.newVar(target.Label)
	relVar := ""
	if strings.Contains(v.Pattern, "@rel") {
		relVar = c.newVar(e.name)
	}

	pat := strings.ReplaceAll(v.Pattern, "@this", thisVar)
	pat = strings.ReplaceAll(pat, "@target", targetVar+":"+target.Label+":"+vnode.LabelVNode)
	if relVar != "" {
		pat = strings.ReplaceAll(pat, "@rel", relVar)
	}
	c.line("OPTIONAL MATCH " + pat)

	inner := append(append([]string{}, scope...), targetVar)
	if relVar != "" {
		inner = append(inner, relVar)
	}
	entries, inner, err := c.compileLevel(e.sub, targetVar, relVar, inner)
	if err != nil {
		return "", err
	}

	if v.Kind == vnode.VirtualToMany {
		// Ordering must happen on the pre-aggregation row set, before the
		// rows are collapsed into a list.
		order := v.DefaultOrder
		if order == "" {
			order = target.DefaultOrder
		}
		if order != "" {
			order = strings.ReplaceAll(order, "@this", targetVar)
			if strings.Contains(order, "@rel") {
				if relVar == "" {
					return "", vgraph.NewInternalError("order key of %s references @rel but its pattern has no relationship variable", e.name)
				}
				order = strings.ReplaceAll(order, "@rel", relVar)
			}
			c.line("WITH " + strings.Join(inner, ", ") + " ORDER BY " + order)
		}
	}

	var proj []string
	for _, pe := range entries {
		if pe.res == "" {
			proj = append(proj, "."+pe.name)
		} else {
			proj = append(proj, pe.name+": "+pe.res)
		}
	}
	projection := targetVar + " {" + strings.Join(proj, ", ") + "}"

	res := c.newVar(e.name)
	switch v.Kind {
	case vnode.VirtualToMany:
		c.line("WITH " + strings.Join(scope, ", ") + ", collect(" + projection + ") AS " + res)
	case vnode.VirtualToOne:
		// The store does not enforce 1:1, so collapse to at most one
		// record per parent.
		c.line("WITH " + strings.Join(scope, ", ") + ", head(collect(" + projection + ")) AS " + res)
	}
	// Everything introduced below this traversal is folded into the
	// collection.
	for _, v := range inner[len(scope):] {
		c.consume(v)
	}
	return res, nil
}

// compileExpr compiles an expression virtual property into a scalar-valued
// variable.
func (c *compiler) compileExpr(name, expr, thisVar, relVar string, scope []string) (string, error) {
	text := strings.ReplaceAll(expr, "@this", thisVar)
	if strings.Contains(text, "@rel") {
		if relVar == "" {
			return "", vgraph.NewInternalError("expression property %s references @rel outside a relationship scope", name)
		}
		text = strings.ReplaceAll(text, "@rel", relVar)
	}
	if strings.Contains(text, "$") {
		return "", vgraph.NewInternalError("expression property %s must not reference query parameters", name)
	}
	res := c.newVar(name)
	c.line("WITH " + strings.Join(scope, ", ") + ", (" + text + ") AS " + res)
	return res, nil
}
