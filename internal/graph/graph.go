// Package graph answers readiness questions over the hard and soft
// dependency relations of a spec document. Adjacency is built lazily
// and memoized against the document's version counter, so repeated
// queries inside one CLI invocation never re-scan the tree.
package graph

import (
	"sort"

	"github.com/specdeck/specdeck/internal/spec"
)

// Graph is a memoized view of a document's dependency relations.
type Graph struct {
	doc     *spec.Document
	version uint64

	hard    map[string][]string // node -> hard predecessors (blocked_by)
	soft    map[string][]string // node -> soft predecessors
	revHard map[string][]string // predecessor -> dependents
	orphans []Orphan
}

// Blocker names one reason a node cannot start.
type Blocker struct {
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

// Orphan is a dependency reference to a node that does not exist.
type Orphan struct {
	NodeID     string `json:"node_id"`
	MissingRef string `json:"missing_ref"`
}

// Bottleneck is a node whose completion unblocks many others.
type Bottleneck struct {
	NodeID string `json:"node_id"`
	Fanout int    `json:"fanout"`
}

// New builds a graph view over doc. Adjacency is computed on first use.
func New(doc *spec.Document) *Graph {
	return &Graph{doc: doc}
}

func (g *Graph) ensure() {
	if g.hard != nil && g.version == g.doc.Version() {
		return
	}
	g.version = g.doc.Version()
	g.hard = make(map[string][]string)
	g.soft = make(map[string][]string)
	g.revHard = make(map[string][]string)
	g.orphans = nil
	g.doc.Walk(func(n *spec.Node) bool {
		for _, dep := range n.Dependencies.BlockedBy {
			if g.doc.Find(dep) == nil {
				g.orphans = append(g.orphans, Orphan{NodeID: n.ID, MissingRef: dep})
				continue
			}
			g.hard[n.ID] = append(g.hard[n.ID], dep)
			g.revHard[dep] = append(g.revHard[dep], n.ID)
		}
		for _, dep := range n.Dependencies.SoftDepends {
			if g.doc.Find(dep) == nil {
				g.orphans = append(g.orphans, Orphan{NodeID: n.ID, MissingRef: dep})
				continue
			}
			g.soft[n.ID] = append(g.soft[n.ID], dep)
		}
		return true
	})
}

// Hard returns the hard predecessors of a node.
func (g *Graph) Hard(id string) []string {
	g.ensure()
	return g.hard[id]
}

// Soft returns the soft predecessors of a node.
func (g *Graph) Soft(id string) []string {
	g.ensure()
	return g.soft[id]
}

// blockedAncestor finds the nearest explicitly blocked ancestor,
// including the node itself is excluded; only ancestors count.
func blockedAncestor(n *spec.Node) *spec.Node {
	for a := n.Parent(); a != nil; a = a.Parent() {
		if a.Status == spec.StatusBlocked {
			return a
		}
	}
	return nil
}

// IsReady reports whether a node is actionable: pending, every hard
// predecessor completed, and no ancestor blocked.
func (g *Graph) IsReady(n *spec.Node) bool {
	g.ensure()
	if n.Status != spec.StatusPending {
		return false
	}
	for _, dep := range g.hard[n.ID] {
		pred := g.doc.Find(dep)
		if pred == nil || pred.Status != spec.StatusCompleted {
			return false
		}
	}
	return blockedAncestor(n) == nil
}

// BlockersOf lists unfinished hard predecessors plus the nearest
// blocked ancestor, in a stable order.
func (g *Graph) BlockersOf(id string) []Blocker {
	g.ensure()
	n := g.doc.Find(id)
	if n == nil {
		return nil
	}
	var out []Blocker
	deps := append([]string(nil), g.hard[id]...)
	sort.Strings(deps)
	for _, dep := range deps {
		pred := g.doc.Find(dep)
		if pred == nil || pred.Status == spec.StatusCompleted {
			continue
		}
		out = append(out, Blocker{NodeID: dep, Reason: string(pred.Status)})
	}
	if a := blockedAncestor(n); a != nil {
		out = append(out, Blocker{NodeID: a.ID, Reason: "blocked ancestor"})
	}
	return out
}

// Dependents returns the nodes hard-blocked on id.
func (g *Graph) Dependents(id string) []string {
	g.ensure()
	out := append([]string(nil), g.revHard[id]...)
	sort.Strings(out)
	return out
}

// Orphans lists references to nonexistent node IDs.
func (g *Graph) Orphans() []Orphan {
	g.ensure()
	out := append([]Orphan(nil), g.orphans...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].MissingRef < out[j].MissingRef
	})
	return out
}

// Bottlenecks lists nodes whose reverse hard fan-out exceeds threshold,
// largest first.
func (g *Graph) Bottlenecks(threshold int) []Bottleneck {
	g.ensure()
	var out []Bottleneck
	for id, deps := range g.revHard {
		if len(deps) > threshold {
			out = append(out, Bottleneck{NodeID: id, Fanout: len(deps)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Fanout != out[j].Fanout {
			return out[i].Fanout > out[j].Fanout
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
