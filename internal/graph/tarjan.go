package graph

import (
	"sort"

	"github.com/specdeck/specdeck/internal/spec"
)

// Cycles runs Tarjan's strongly-connected-components algorithm over the
// hard dependency graph and returns every component of size >= 2 plus
// self-loops. Components are rotated to start at their smallest ID and
// ordered by that ID, so output is deterministic for a given document.
func (g *Graph) Cycles() [][]string {
	g.ensure()

	ids := make([]string, 0, len(g.hard))
	seen := map[string]bool{}
	g.doc.Walk(func(n *spec.Node) bool {
		if !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
		return true
	})

	index := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	next := 0
	var components [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		succs := append([]string(nil), g.hard[v]...)
		sort.Strings(succs)
		for _, w := range succs {
			if _, visited := index[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) >= 2 || selfLoop(g.hard, v) {
				components = append(components, comp)
			}
		}
	}

	for _, v := range ids {
		if _, visited := index[v]; !visited {
			strongconnect(v)
		}
	}

	for i, comp := range components {
		components[i] = rotateToSmallest(comp)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}

func selfLoop(hard map[string][]string, v string) bool {
	for _, w := range hard[v] {
		if w == v {
			return true
		}
	}
	return false
}

// rotateToSmallest reorders a cycle so it starts at its smallest ID
// while preserving the cyclic order.
func rotateToSmallest(comp []string) []string {
	if len(comp) == 0 {
		return comp
	}
	min := 0
	for i, id := range comp {
		if id < comp[min] {
			min = i
		}
	}
	out := make([]string, 0, len(comp))
	out = append(out, comp[min:]...)
	out = append(out, comp[:min]...)
	return out
}
