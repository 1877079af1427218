package importgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddEdge(t *testing.T) {
	g := New()
	g.AddEdge("src/index.js", "src/a.js")
	g.AddEdge("src/index.js", "src/a.js")
	g.AddEdge("src/a.js", "src/b.js")

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, []string{"src/a.js"}, g.Imports("src/index.js"))
	assert.Equal(t, []string{"src/a.js"}, g.Importers("src/b.js"))
	assert.Equal(t, "importgraph(3 modules, 2 imports)", g.String())
}

func TestGraph_Cycles_None(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	assert.Empty(t, g.Cycles())
}

func TestGraph_Cycles_Simple(t *testing.T) {
	g := New()
	g.AddEdge("index", "b")
	g.AddEdge("b", "a")
	g.AddEdge("a", "b")

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0])
	assert.Equal(t, "a -> b -> a", FormatCycle(cycles[0]))
}

func TestGraph_Cycles_SelfImport(t *testing.T) {
	g := New()
	g.AddEdge("a", "a")

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "a"}, cycles[0])
}

func TestGraph_Cycles_Multiple(t *testing.T) {
	g := New()
	g.AddEdge("index", "a")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("index", "x")
	g.AddEdge("x", "y")
	g.AddEdge("y", "z")
	g.AddEdge("z", "x")

	cycles := g.Cycles()
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0])
	assert.Equal(t, []string{"x", "y", "z", "x"}, cycles[1])
}

func TestGraph_Affected(t *testing.T) {
	g := New()
	g.AddEdge("target:global", "src/index.js")
	g.AddEdge("target:node", "src/index.js")
	g.AddEdge("src/index.js", "src/util.js")
	g.AddEdge("target:es", "src/other.js")

	assert.Equal(t,
		[]string{"src/index.js", "src/util.js", "target:global", "target:node"},
		g.Affected([]string{"src/util.js"}))
	assert.Equal(t, []string{"src/other.js", "target:es"}, g.Affected([]string{"src/other.js", "missing.js"}))
	assert.Empty(t, g.Affected(nil))
}
