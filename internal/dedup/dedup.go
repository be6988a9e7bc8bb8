// Package dedup computes shared-subtree information for a dependency-graph
// root: which nodes are reachable from more than one of the root's
// immediate children. Removing one path to such a node does not eliminate
// its trigger effect, which is exactly what the dedup-aware scoring
// strategy needs to know.
package dedup

import (
	"math/bits"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
)

// Set holds the labels reachable from at least two distinct immediate
// children of the analysis root.
type Set map[string]struct{}

// Contains reports whether label is in the set.
func (s Set) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

// Analyzer computes duplicate sets against one graph. The graph must be
// fully built (read-only); the analyzer itself keeps no state between
// calls.
type Analyzer struct {
	g *buildgraph.DependencyGraph
}

// NewAnalyzer creates an Analyzer over g.
func NewAnalyzer(g *buildgraph.DependencyGraph) *Analyzer {
	return &Analyzer{g: g}
}

// Duplicates returns the set of nodes reachable from two or more distinct
// immediate children of root. An empty child set yields an empty set.
//
// The traversal is a single combined worklist walk: every node carries a
// bitset of the immediate children it has been reached from, and a node is
// re-expanded only when the walk brings it new origin bits. This stays near
// O(nodes + edges) for realistic fan-out, where one independent traversal
// per child would be O(children × graph). The explicit worklist also keeps
// deep dependency chains from exhausting the stack.
func (a *Analyzer) Duplicates(root *buildgraph.Target) Set {
	children := a.g.Children(root.Label)
	if len(children) == 0 {
		return Set{}
	}

	words := (len(children) + 63) / 64
	origins := make(map[string][]uint64)

	type item struct {
		label string
		bits  []uint64
	}
	worklist := make([]item, 0, len(children))
	for i, child := range children {
		bits := make([]uint64, words)
		bits[i/64] |= 1 << (i % 64)
		worklist = append(worklist, item{label: child, bits: bits})
	}

	dups := Set{}
	for len(worklist) > 0 {
		it := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		tags := origins[it.label]
		if tags == nil {
			tags = make([]uint64, words)
			origins[it.label] = tags
		}

		grew := false
		for w := range tags {
			merged := tags[w] | it.bits[w]
			if merged != tags[w] {
				tags[w] = merged
				grew = true
			}
		}
		if !grew {
			continue
		}
		if popcount(tags) >= 2 {
			dups[it.label] = struct{}{}
		}

		for _, next := range a.g.Children(it.label) {
			worklist = append(worklist, item{label: next, bits: tags})
		}
	}

	return dups
}

func popcount(words []uint64) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount64(w)
	}
	return n
}
