// Package importgraph holds the module import graph reported by the bundler.
// It finds import cycles and maps changed files to the targets that consumed them.
package importgraph

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a directed graph of modules. An edge from A to B means A imports B.
type Graph struct {
	nodes   map[string]struct{}
	edges   map[string][]string // importer -> imported
	parents map[string][]string // imported -> importers
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a module. Adding an existing module is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge records that from imports to. Missing nodes are created.
// Self-imports are kept: they are cycles of length one.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if !contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
	if !contains(g.parents[to], from) {
		g.parents[to] = append(g.parents[to], from)
	}
}

// NodeCount returns the number of modules.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Imports returns the modules imported by id.
func (g *Graph) Imports(id string) []string {
	return g.edges[id]
}

// Importers returns the modules importing id.
func (g *Graph) Importers(id string) []string {
	return g.parents[id]
}

// Cycles returns every distinct import cycle reachable by depth-first search.
// Each cycle starts and ends with the same module, rotated so that the
// lexically smallest module comes first. Output is sorted.
func (g *Graph) Cycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, next := range g.edges[id] {
			if onStack[next] {
				cycle := closeCycle(stack, next)
				key := strings.Join(cycle, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !visited[id] {
			dfs(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], " ") < strings.Join(cycles[j], " ")
	})
	return cycles
}

// closeCycle extracts the cycle ending at the back edge to start and rotates it.
func closeCycle(stack []string, start string) []string {
	i := len(stack) - 1
	for i >= 0 && stack[i] != start {
		i--
	}
	members := append([]string(nil), stack[i:]...)

	smallest := 0
	for j, m := range members {
		if m < members[smallest] {
			smallest = j
		}
	}
	rotated := make([]string, 0, len(members)+1)
	rotated = append(rotated, members[smallest:]...)
	rotated = append(rotated, members[:smallest]...)
	return append(rotated, rotated[0])
}

// FormatCycle renders a cycle as "a -> b -> a".
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// Affected returns every node reachable from the given nodes along import-by
// edges, i.e. the changed modules plus everything that (transitively)
// imports them. Unknown ids are ignored.
func (g *Graph) Affected(changed []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, importer := range g.parents[id] {
			mark(importer)
		}
	}

	for _, id := range changed {
		if _, exists := g.nodes[id]; exists {
			mark(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// String summarises the graph for debug logs.
func (g *Graph) String() string {
	count := 0
	for _, to := range g.edges {
		count += len(to)
	}
	return fmt.Sprintf("importgraph(%d modules, %d imports)", len(g.nodes), count)
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
