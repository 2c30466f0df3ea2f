package pull_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vgraph"
	"github.com/syssam/vgraph/pull"
)

func TestWith(t *testing.T) {
	t.Parallel()

	t.Run("unknown property", func(t *testing.T) {
		r := pull.NewRequest(movieType).With("nope")
		require.Error(t, r.Err())
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("duplicate unconditional is a no-op", func(t *testing.T) {
		r := pull.NewRequest(movieType).With("title").With("title")
		assert.NoError(t, r.Err())
	})
	t.Run("unconditional after conditional", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithFlag("title", "f").With("title")
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("errors are sticky", func(t *testing.T) {
		r := pull.NewRequest(movieType).With("nope")
		first := r.Err()
		r = r.With("title")
		assert.Same(t, first, r.Err())
	})
	t.Run("rel property outside sub-request", func(t *testing.T) {
		r := pull.NewRequest(personType).With("role")
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
}

func TestWithFlag(t *testing.T) {
	t.Parallel()

	t.Run("empty flag", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithFlag("title", "")
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("same flag is idempotent", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithFlag("title", "f").WithFlag("title", "f")
		assert.NoError(t, r.Err())
	})
	t.Run("conditional after unconditional", func(t *testing.T) {
		r := pull.NewRequest(movieType).With("title").WithFlag("title", "f")
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("two different flags", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithFlag("title", "f1").WithFlag("title", "f2")
		require.Error(t, r.Err())
		assert.Contains(t, r.Err().Error(), "two different flags")
	})
}

func TestWithAll(t *testing.T) {
	t.Parallel()

	// Already selected properties keep their position; the rest follow in
	// declaration order.
	r := pull.NewRequest(movieType).With("year").WithAll()
	require.NoError(t, r.Err())
	query, _, err := pull.Compile(r, pull.Filter{})
	require.NoError(t, err)
	assert.Contains(t, query, "RETURN _node.year AS year, _node.id AS id, _node.title AS title")
}

func TestWithVirtual(t *testing.T) {
	t.Parallel()

	withTitle := func(m *pull.Request) *pull.Request { return m.With("title") }

	t.Run("unknown virtual", func(t *testing.T) {
		r := pull.NewRequest(personType).WithVirtual("nope", withTitle)
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("requested twice", func(t *testing.T) {
		r := pull.NewRequest(personType).
			WithVirtual("movies", withTitle).
			WithVirtual("movies", withTitle)
		require.Error(t, r.Err())
		assert.Contains(t, r.Err().Error(), "requested twice")
	})
	t.Run("relationship kind requires a builder", func(t *testing.T) {
		r := pull.NewRequest(personType).WithVirtual("movies", nil)
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("expression kind takes no builder", func(t *testing.T) {
		r := pull.NewRequest(personType).WithVirtual("movieCount", withTitle)
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("sub-request must come from the provided base", func(t *testing.T) {
		foreign := pull.NewRequest(movieType).With("title")
		r := pull.NewRequest(personType).WithVirtual("movies", func(*pull.Request) *pull.Request {
			return foreign
		})
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("sub-request errors surface on the parent", func(t *testing.T) {
		r := pull.NewRequest(personType).WithVirtual("movies", func(m *pull.Request) *pull.Request {
			return m.With("nope")
		})
		require.Error(t, r.Err())
		assert.Contains(t, r.Err().Error(), "nope")
	})
}

func TestWithDerived(t *testing.T) {
	t.Parallel()

	t.Run("unknown derived", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithDerived("nope")
		assert.True(t, vgraph.IsRequestError(r.Err()))
	})
	t.Run("requested twice", func(t *testing.T) {
		r := pull.NewRequest(movieType).WithDerived("display").WithDerived("display")
		require.Error(t, r.Err())
		assert.Contains(t, r.Err().Error(), "requested twice")
	})
	t.Run("explicit selection keeps a dependency visible", func(t *testing.T) {
		// year is pulled in as a hidden dependency first, then requested
		// explicitly; the explicit request wins.
		r := pull.NewRequest(movieType).WithDerived("display").With("year")
		assert.NoError(t, r.Err())
	})
}

func TestRequestImmutability(t *testing.T) {
	t.Parallel()

	base := pull.NewRequest(movieType).With("id")
	b1 := base.With("title")
	b2 := base.With("year")

	baseQ, _, err := pull.Compile(base, pull.Filter{})
	require.NoError(t, err)
	q1, _, err := pull.Compile(b1, pull.Filter{})
	require.NoError(t, err)
	q2, _, err := pull.Compile(b2, pull.Filter{})
	require.NoError(t, err)

	// Branching off a shared prefix never mutates it.
	assert.Contains(t, baseQ, "RETURN _node.id AS id\n")
	assert.Contains(t, q1, "RETURN _node.id AS id, _node.title AS title")
	assert.Contains(t, q2, "RETURN _node.id AS id, _node.year AS year")
}
