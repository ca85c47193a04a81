package graph

import (
	"slices"

	"github.com/fsmtools/fsm/pkg/pkg"
)

// TopologicalOrder orders the given packages so that every dependency
// precedes its dependents, considering only depends-edges between members of
// the subset. Passing nil orders the whole graph.
//
// The traversal is depth-first with white/gray/black coloring, emitting
// post-order finish times. Encountering a back-edge (a node still on the
// active path) aborts with a [CycleError] carrying the minimal cycle: the
// slice of the active path from the back-edge target to the current node,
// not the whole graph.
//
// Roots and children are visited in sorted id order, so the result is
// deterministic and idempotent: reordering an already ordered subset
// reproduces the same sequence.
func (g *Graph) TopologicalOrder(subset []pkg.ID) ([]pkg.ID, error) {
	if subset == nil {
		for _, p := range g.Packages() {
			subset = append(subset, p.ID)
		}
	}

	member := make(map[pkg.ID]bool, len(subset))
	for _, id := range subset {
		member[id] = true
	}

	const (
		white = iota
		gray
		black
	)

	color := make(map[pkg.ID]int, len(subset))
	pathPos := make(map[pkg.ID]int, len(subset))
	var path []pkg.ID
	var order []pkg.ID
	var cycle []pkg.ID

	var dfs func(id pkg.ID) bool
	dfs = func(id pkg.ID) bool {
		color[id] = gray
		pathPos[id] = len(path)
		path = append(path, id)

		children, err := g.Neighbors(id, EdgeDepends)
		if err == nil {
			for _, child := range children {
				if !member[child] {
					continue
				}
				switch color[child] {
				case white:
					if !dfs(child) {
						return false
					}
				case gray:
					// Back-edge: the minimal cycle is the active
					// path slice from the child to here.
					cycle = slices.Clone(path[pathPos[child]:])
					return false
				}
			}
		}

		path = path[:len(path)-1]
		delete(pathPos, id)
		color[id] = black
		order = append(order, id)
		return true
	}

	roots := slices.Clone(subset)
	slices.SortFunc(roots, compareIDs)
	roots = slices.Compact(roots)

	for _, id := range roots {
		if color[id] == white {
			if !dfs(id) {
				return nil, &CycleError{Cycle: cycle}
			}
		}
	}
	return order, nil
}
