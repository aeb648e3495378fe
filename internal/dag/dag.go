package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/jform/internal/ctxlog"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// Build constructs the dependency graph for the given fields. Every field
// gets a node, even when nothing depends on it. Dependencies that do not name
// a field (generic expression names, for example) and self references are
// skipped.
func Build(ctx context.Context, entries []Entry) *Graph {
	logger := ctxlog.FromContext(ctx)
	g := New()
	for _, e := range entries {
		g.AddNode(e.Name)
	}

	edges := 0
	for _, e := range entries {
		for _, dep := range e.DependsOn {
			if dep == e.Name {
				continue
			}
			if !g.Has(dep) {
				logger.Debug("Skipping dependency on unknown field.", "field", e.Name, "dependency", dep)
				continue
			}
			if err := g.AddEdge(dep, e.Name); err == nil {
				edges++
			}
		}
	}
	logger.Debug("Dependency graph built.", "fields", len(entries), "edges", edges)
	return g
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:      id,
		index:   len(g.order),
		depSet:  make(map[string]struct{}),
		userSet: make(map[string]struct{}),
	}
	g.order = append(g.order, id)
}

// Has reports whether the graph contains a node with the given ID.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// AddEdge records that `toID` depends on `fromID`. An error is returned if
// either node does not exist or if the edge would be a self-reference.
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	if _, dup := fromNode.userSet[toID]; dup {
		return nil
	}
	fromNode.userSet[toID] = struct{}{}
	fromNode.users = append(fromNode.users, toID)
	toNode.depSet[fromID] = struct{}{}
	toNode.deps = append(toNode.deps, fromID)
	return nil
}

// Dependents returns the fields that depend on id, in declaration order.
// Unknown IDs yield an empty slice so propagation never fails on lookup.
func (g *Graph) Dependents(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return []string{}
	}
	return g.sortByIndex(n.users)
}

// Dependencies returns the fields that id depends on, in declaration order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.sortByIndex(n.deps), nil
}

// Nodes returns every node ID in insertion order.
func (g *Graph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return append([]string(nil), g.order...)
}

// Map returns the graph as name -> dependents. Every node has an entry.
func (g *Graph) Map() map[string][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make(map[string][]string, len(g.nodes))
	for id, n := range g.nodes {
		out[id] = g.sortByIndex(n.users)
	}
	return out
}

// sortByIndex copies ids and orders them by node insertion index. The caller
// must hold the read lock.
func (g *Graph) sortByIndex(ids []string) []string {
	out := append([]string{}, ids...)
	sort.SliceStable(out, func(i, j int) bool {
		return g.nodes[out[i]].index < g.nodes[out[j]].index
	})
	return out
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// naming the first node found on a cycle. Nodes are visited in insertion
// order so the reported node is deterministic.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.id)
		}

		temporary[n.id] = true
		for _, user := range n.users {
			if err := visit(g.nodes[user]); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}
