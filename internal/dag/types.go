package dag

import "sync"

// Graph maps each field to the fields that depend on it. All operations on
// the graph are concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by field name.
	nodes map[string]*node
	// order is the insertion order of nodes.
	order []string
}

// node is a single field in the graph. Edges are kept both as ordered slices
// (for deterministic traversal) and as sets (for membership checks).
type node struct {
	id    string
	index int

	deps    []string
	depSet  map[string]struct{}
	users   []string
	userSet map[string]struct{}
}

// Entry is the minimal description of a field needed to build the graph.
type Entry struct {
	Name      string
	DependsOn []string
}
