package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/jform/internal/ctxlog"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.depSet)
	assert.NotNil(t, nodeA.userSet)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		require.NoError(t, g.AddEdge("a", "b")) // b depends on a
		require.NoError(t, g.AddEdge("a", "b")) // duplicate is a no-op

		assert.Equal(t, []string{"b"}, g.Dependents("a"))
		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestBuild(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("every field has an entry", func(t *testing.T) {
		g := Build(ctx, []Entry{
			{Name: "a"},
			{Name: "b", DependsOn: []string{"a"}},
			{Name: "c", DependsOn: []string{"a", "b"}},
		})
		m := g.Map()
		assert.Equal(t, []string{"b", "c"}, m["a"])
		assert.Equal(t, []string{"c"}, m["b"])
		require.Contains(t, m, "c")
		assert.Empty(t, m["c"])
	})

	t.Run("dependents follow declaration order", func(t *testing.T) {
		g := Build(ctx, []Entry{
			{Name: "z", DependsOn: []string{"src"}},
			{Name: "src"},
			{Name: "m", DependsOn: []string{"src"}},
			{Name: "a", DependsOn: []string{"src"}},
		})
		assert.Equal(t, []string{"z", "m", "a"}, g.Dependents("src"))
	})

	t.Run("self references and unknown names are skipped", func(t *testing.T) {
		g := Build(ctx, []Entry{
			{Name: "a", DependsOn: []string{"a", "b", "totalExpression"}},
			{Name: "b", DependsOn: []string{"a", "b"}},
		})
		assert.Equal(t, []string{"b"}, g.Dependents("a"))
		assert.Equal(t, []string{"a"}, g.Dependents("b"))
		assert.Empty(t, g.Dependents("totalExpression"))
		assert.Empty(t, g.Dependents("never-declared"))
	})

	t.Run("rebuild discards stale entries", func(t *testing.T) {
		first := Build(ctx, []Entry{{Name: "a"}, {Name: "gone", DependsOn: []string{"a"}}})
		assert.Equal(t, []string{"gone"}, first.Dependents("a"))

		second := Build(ctx, []Entry{{Name: "a"}})
		assert.Empty(t, second.Dependents("a"))
		assert.False(t, second.Has("gone"))
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		for _, id := range []string{"a", "b", "c", "d"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("mutual dependency is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))
		err := g.DetectCycles()
		assert.ErrorContains(t, err, "cycle detected involving node 'a'")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))

		g.AddNode("x")
		g.AddNode("y")
		g.AddNode("z")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y"))

		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}
