package vnode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/cypher"
	"github.com/syssam/vgraph/vnode"
	"github.com/syssam/vgraph/vnode/field"
)

var _ cypher.Labeled = (*vnode.Type)(nil)

var movieType = &vnode.Type{
	Label: "Movie",
	Properties: []field.Definition{
		field.UUID("id"),
		field.String("title").NotEmpty(),
		field.Int("year").Min(1800),
	},
	DefaultOrder: "@this.year DESC",
}

var personType = &vnode.Type{
	Label: "Person",
	Properties: []field.Definition{
		field.UUID("id"),
		field.Slug("slugId"),
		field.String("name").NotEmpty(),
	},
	Relationships: []vnode.Relationship{
		{
			Type:        "ACTED_IN",
			To:          []string{"Movie"},
			Cardinality: vnode.ToMany,
			Properties:  []field.Definition{field.String("role")},
		},
	},
	Virtual: []vnode.Virtual{
		{
			Name:          "movies",
			Kind:          vnode.VirtualToMany,
			Pattern:       "(@this)-[@rel:ACTED_IN]->(@target)",
			Target:        func() *vnode.Type { return movieType },
			RelProperties: []string{"role"},
		},
	},
	DefaultOrder: "@this.name",
}

func TestVNID(t *testing.T) {
	t.Parallel()

	id := vnode.NewVNID()
	assert.True(t, vnode.IsVNID(id))
	assert.False(t, vnode.IsVNID("spider-man"))
	assert.False(t, vnode.IsVNID(""))
}

func TestTypeAccessors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"id", "slugId", "name"}, personType.PropertyNames())
	require.NotNil(t, personType.Property("name"))
	assert.Nil(t, personType.Property("missing"))

	v, ok := personType.VirtualByName("movies")
	require.True(t, ok)
	assert.Equal(t, vnode.VirtualToMany, v.Kind)
	_, ok = personType.VirtualByName("missing")
	assert.False(t, ok)
}

func TestTypeLabels(t *testing.T) {
	t.Parallel()

	animal := &vnode.Type{Label: "Animal"}
	dog := &vnode.Type{Label: "Dog", Extends: animal}

	assert.Empty(t, animal.Ancestors())
	assert.Equal(t, []string{"Animal"}, dog.Ancestors())
	assert.Equal(t, []string{"Dog", "Animal", vnode.LabelVNode}, dog.Labels())
}

func TestTypeCypherLabels(t *testing.T) {
	t.Parallel()

	animal := &vnode.Type{Label: "Animal"}
	dog := &vnode.Type{Label: "Dog", Extends: animal}
	assert.Equal(t, "Dog:Animal:VNode", dog.CypherLabels())

	// A type splices into a clause as a label expression.
	text, params, err := cypher.C("MATCH (n:{}) RETURN n", dog).Query()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Dog:Animal:VNode) RETURN n", text)
	assert.Empty(t, params)
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		r := vnode.NewRegistry()
		require.NoError(t, r.Register(movieType, personType))
		got, ok := r.Type("Movie")
		require.True(t, ok)
		assert.Same(t, movieType, got)
	})
	t.Run("empty label", func(t *testing.T) {
		r := vnode.NewRegistry()
		assert.Error(t, r.Register(&vnode.Type{}))
	})
	t.Run("duplicate label", func(t *testing.T) {
		r := vnode.NewRegistry()
		require.NoError(t, r.Register(movieType))
		assert.Error(t, r.Register(movieType))
	})
	t.Run("unregistered parent", func(t *testing.T) {
		r := vnode.NewRegistry()
		parent := &vnode.Type{Label: "Animal"}
		child := &vnode.Type{Label: "Dog", Extends: parent}
		assert.Error(t, r.Register(child))
		// Parent first (or in the same call, in order) is fine.
		r = vnode.NewRegistry()
		assert.NoError(t, r.Register(parent, child))
	})
	t.Run("bad virtual", func(t *testing.T) {
		r := vnode.NewRegistry()
		bad := &vnode.Type{
			Label: "Bad",
			Virtual: []vnode.Virtual{
				{Name: "friends", Kind: vnode.VirtualToMany, Pattern: "(@this)-[:KNOWS]->(@target)"},
			},
		}
		assert.Error(t, r.Register(bad)) // no target type
	})
}

func TestRegistryRelationshipChecks(t *testing.T) {
	t.Parallel()

	target := func() *vnode.Type { return movieType }
	acted := vnode.Relationship{
		Type:        "ACTED_IN",
		To:          []string{"Movie"},
		Cardinality: vnode.ToMany,
		Properties:  []field.Definition{field.String("role")},
	}
	register := func(v vnode.Virtual) error {
		r := vnode.NewRegistry()
		return r.Register(&vnode.Type{
			Label:         "T",
			Relationships: []vnode.Relationship{acted},
			Virtual:       []vnode.Virtual{v},
		})
	}

	t.Run("declared traversal passes", func(t *testing.T) {
		assert.NoError(t, register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToMany, Target: target,
			Pattern:       "(@this)-[@rel:ACTED_IN]->(@target)",
			RelProperties: []string{"role"},
		}))
	})
	t.Run("undeclared relationship", func(t *testing.T) {
		err := register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToMany, Target: target,
			Pattern: "(@this)-[:KNOWS]->(@target)",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "undeclared relationship")
	})
	t.Run("cardinality mismatch", func(t *testing.T) {
		err := register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToOne, Target: target,
			Pattern: "(@this)-[:ACTED_IN]->(@target)",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "to-many")
	})
	t.Run("undeclared relationship property", func(t *testing.T) {
		err := register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToMany, Target: target,
			Pattern:       "(@this)-[@rel:ACTED_IN]->(@target)",
			RelProperties: []string{"salary"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "salary")
	})
	t.Run("disallowed target", func(t *testing.T) {
		err := register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToMany,
			Target:  func() *vnode.Type { return personType },
			Pattern: "(@this)-[:ACTED_IN]->(@target)",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not allow")
	})
	t.Run("incoming traversal belongs to the other side", func(t *testing.T) {
		assert.NoError(t, register(vnode.Virtual{
			Name: "v", Kind: vnode.VirtualToOne, Target: target,
			Pattern: "(@this)<-[:DIRECTED]-(@target)",
		}))
	})
}

func TestVirtualCheck(t *testing.T) {
	t.Parallel()

	target := func() *vnode.Type { return movieType }
	register := func(v vnode.Virtual) error {
		r := vnode.NewRegistry()
		return r.Register(&vnode.Type{Label: "T", Virtual: []vnode.Virtual{v}})
	}

	assert.Error(t, register(vnode.Virtual{Kind: vnode.VirtualToMany, Target: target, Pattern: "(@this)-->(@target)"}), "empty name")
	assert.Error(t, register(vnode.Virtual{Name: "v", Kind: vnode.VirtualToMany, Target: target, Pattern: "(@this)-->()"}), "pattern without @target")
	assert.Error(t, register(vnode.Virtual{Name: "v", Kind: vnode.VirtualToOne, Target: target, Pattern: "(@this)-[@rel:R]->(@target)", RelProperties: []string{"p"}}), "rel props on to-one")
	assert.Error(t, register(vnode.Virtual{Name: "v", Kind: vnode.VirtualToMany, Target: target, Pattern: "(@this)-[:R]->(@target)", RelProperties: []string{"p"}}), "rel props without @rel")
	assert.Error(t, register(vnode.Virtual{Name: "v", Kind: vnode.VirtualExpr}), "expr without expression")
	assert.NoError(t, register(vnode.Virtual{Name: "v", Kind: vnode.VirtualExpr, Expression: "size((@this)-[:R]->())"}))
}

func TestRawNode(t *testing.T) {
	t.Parallel()

	live := vnode.RawNode{ID: vnode.NewVNID(), Labels: []string{"Movie", vnode.LabelVNode}}
	assert.True(t, live.HasLabel("Movie"))
	assert.False(t, live.SoftDeleted())

	deleted := vnode.RawNode{ID: vnode.NewVNID(), Labels: []string{"Movie", vnode.LabelDeleted}}
	assert.True(t, deleted.SoftDeleted())
}

func TestRegistryValidate(t *testing.T) {
	t.Parallel()

	r := vnode.NewRegistry()
	animal := &vnode.Type{Label: "Animal", Properties: []field.Definition{field.UUID("id")}}
	dog := &vnode.Type{
		Label:   "Dog",
		Extends: animal,
		Properties: []field.Definition{
			field.String("name").NotEmpty(),
		},
	}
	require.NoError(t, r.Register(animal, dog))

	id := vnode.NewVNID()
	props := map[string]any{"id": id, "name": "Rex"}

	t.Run("valid", func(t *testing.T) {
		n := vnode.RawNode{ID: id, Labels: []string{"Dog", "Animal", vnode.LabelVNode}, Props: props}
		assert.NoError(t, r.Validate(n))
	})
	t.Run("both markers", func(t *testing.T) {
		n := vnode.RawNode{ID: id, Labels: []string{"Dog", vnode.LabelVNode, vnode.LabelDeleted}, Props: props}
		err := r.Validate(n)
		assert.True(t, vgraph.IsValidationError(err))
	})
	t.Run("too few labels", func(t *testing.T) {
		n := vnode.RawNode{ID: id, Labels: []string{vnode.LabelVNode}, Props: props}
		assert.True(t, vgraph.IsValidationError(r.Validate(n)))
	})
	t.Run("missing inherited label", func(t *testing.T) {
		n := vnode.RawNode{ID: id, Labels: []string{"Dog", vnode.LabelVNode}, Props: props}
		err := r.Validate(n)
		require.True(t, vgraph.IsValidationError(err))
		assert.Contains(t, err.Error(), "Animal")
	})
	t.Run("bad property", func(t *testing.T) {
		n := vnode.RawNode{
			ID:     id,
			Labels: []string{"Dog", "Animal", vnode.LabelVNode},
			Props:  map[string]any{"id": id, "name": ""},
		}
		err := r.Validate(n)
		require.True(t, vgraph.IsValidationError(err))
		assert.Contains(t, err.Error(), "name")
	})
	t.Run("unknown label ignored", func(t *testing.T) {
		n := vnode.RawNode{ID: id, Labels: []string{"Stray", vnode.LabelVNode}, Props: nil}
		assert.NoError(t, r.Validate(n))
	})
}

type mapRecord map[string]any

func (m mapRecord) Get(name string) any { return m[name] }
func (m mapRecord) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func TestDerivedCEL(t *testing.T) {
	t.Parallel()

	d := vnode.DerivedCEL("displayName", `name + " (" + string(year) + ")"`, "name", "year")
	assert.Equal(t, []string{"name", "year"}, d.Deps)

	out, err := d.Compute(mapRecord{"name": "Solaris", "year": int64(1972)})
	require.NoError(t, err)
	assert.Equal(t, "Solaris (1972)", out)
}

func TestDerivedCELInvalidPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		vnode.DerivedCEL("bad", "name +", "name")
	})
}
