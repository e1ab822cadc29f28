// Package plan models a convergence run as an explicit directed acyclic
// graph of resource assertions with typed edges, replacing implicit
// template-expansion ordering with a testable data structure.
package plan

import (
	"fmt"
	"sort"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

// EdgeKind classifies the relation between two assertions.
type EdgeKind int

const (
	// EdgeRequires means the dependent runs only after the prerequisite
	// converged (no change or changed).
	EdgeRequires EdgeKind = iota
	// EdgeOnChange means the dependent runs only if the prerequisite
	// reported a change; otherwise it is recorded as no-change without
	// being probed or applied.
	EdgeOnChange
	// EdgeOnFailure means the dependent runs only if the prerequisite
	// failed. Used for recovery handlers.
	EdgeOnFailure
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRequires:
		return "requires"
	case EdgeOnChange:
		return "onchange"
	case EdgeOnFailure:
		return "onfail"
	}
	return "unknown"
}

// Edge is a typed prerequisite relation: To depends on From.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Graph is an immutable, validated assertion DAG. Build one with a Builder;
// a built Graph is safe for concurrent reads.
type Graph struct {
	nodes map[string]resource.Assertion
	order []string          // topological order, deterministic
	preds map[string][]Edge // incoming edges keyed by dependent ID
}

// Builder accumulates assertions and edges, then validates into a Graph.
type Builder struct {
	assertions []resource.Assertion
	edges      []Edge
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add registers an assertion. Its Requires() IDs become requires-edges.
func (b *Builder) Add(a resource.Assertion) *Builder {
	b.assertions = append(b.assertions, a)
	for _, dep := range a.Requires() {
		b.edges = append(b.edges, Edge{From: dep, To: a.ID(), Kind: EdgeRequires})
	}
	return b
}

// Connect adds an explicit typed edge between two registered assertions.
func (b *Builder) Connect(from, to string, kind EdgeKind) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, Kind: kind})
	return b
}

// Build validates the accumulated assertions and edges. It rejects duplicate
// or empty IDs, edges referencing unknown assertions, self-loops and cycles.
func (b *Builder) Build() (*Graph, error) {
	nodes := make(map[string]resource.Assertion, len(b.assertions))
	declared := make([]string, 0, len(b.assertions))

	for _, a := range b.assertions {
		id := a.ID()
		if id == "" {
			return nil, fmt.Errorf("plan: assertion with empty ID")
		}
		if _, exists := nodes[id]; exists {
			return nil, fmt.Errorf("plan: duplicate assertion ID %q", id)
		}
		nodes[id] = a
		declared = append(declared, id)
	}

	preds := make(map[string][]Edge)
	succs := make(map[string][]string)
	indeg := make(map[string]int, len(nodes))
	seen := make(map[Edge]struct{}, len(b.edges))

	for _, e := range b.edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, fmt.Errorf("plan: edge %s -> %s references unknown assertion %q", e.From, e.To, e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return nil, fmt.Errorf("plan: edge %s -> %s references unknown assertion %q", e.From, e.To, e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("plan: self-loop on %q", e.From)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		preds[e.To] = append(preds[e.To], e)
		succs[e.From] = append(succs[e.From], e.To)
		indeg[e.To]++
	}

	// Kahn's algorithm; declaration order breaks ties so plans render
	// identically across runs.
	var ready []string
	for _, id := range declared {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	pos := make(map[string]int, len(declared))
	for i, id := range declared {
		pos[id] = i
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range succs[id] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(nodes) {
		remaining := make([]string, 0)
		for _, id := range declared {
			if indeg[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("plan: dependency cycle involving %v", remaining)
	}

	return &Graph{nodes: nodes, order: order, preds: preds}, nil
}

// Order returns assertion IDs in execution order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Assertion returns the assertion registered under id, or nil.
func (g *Graph) Assertion(id string) resource.Assertion {
	return g.nodes[id]
}

// Predecessors returns the incoming edges of id.
func (g *Graph) Predecessors(id string) []Edge {
	return g.preds[id]
}

// Len returns the number of assertions in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}
