// Package graph implements the federated dependency graph over canonical
// package identities.
//
// Nodes are [pkg.Package] values held in an arena (a slice indexed by stable
// integers); every name and virtual capability is a symbol resolved through a
// provider table, so "provides" aliases and concrete names are addressed
// uniformly. Edges are typed: depends, conflicts and provides.
//
// A Graph is built wholesale from an index run and is never patched
// incrementally; re-indexing produces a new snapshot (copy-on-rebuild).
// Construction is total and side-effect-free: the same inputs added in any
// order produce a graph that answers every query identically. A built Graph
// is safe for concurrent readers.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fsmtools/fsm/pkg/pkg"
)

var (
	// ErrDuplicatePackage is returned by [Graph.Add] when a package with
	// the same canonical id was already added.
	ErrDuplicatePackage = errors.New("duplicate package id")

	// ErrInvalidPackage is returned by [Graph.Add] when the package id is
	// incomplete (missing format, name or repository).
	ErrInvalidPackage = errors.New("package id must have format, name and repo")

	// ErrUnknownPackage is returned by queries referencing an id that is
	// not in the graph.
	ErrUnknownPackage = errors.New("unknown package")
)

// EdgeKind selects which relation a neighbor query traverses.
type EdgeKind int

const (
	// EdgeDepends traverses dependency edges to the concrete packages
	// that satisfy each dependency symbol.
	EdgeDepends EdgeKind = iota
	// EdgeConflicts traverses conflict edges in both directions.
	EdgeConflicts
	// EdgeProvides yields co-providers: other packages satisfying a
	// virtual capability this package also provides.
	EdgeProvides
)

// CycleError reports a dependency cycle. Cycle holds the minimal cycle in
// traversal order: the first element depends on the second, and the last
// depends on the first again.
type CycleError struct {
	Cycle []pkg.ID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		ids[i] = id.String()
	}
	return fmt.Sprintf("dependency cycle: %s -> %s", strings.Join(ids, " -> "), ids[0])
}

// node is an arena entry. Adjacency is recomputed through the symbol tables
// rather than stored per-edge, which keeps construction total regardless of
// insertion order.
type node struct {
	pkg pkg.Package
}

// Graph is the federated dependency graph. The zero value is not usable;
// call [New].
type Graph struct {
	nodes []node
	byID  map[pkg.ID]int

	// providers maps every symbol (package name or virtual capability) to
	// the arena indices of the concrete packages satisfying it.
	providers map[string][]int

	// dependents maps a symbol to the arena indices of packages that
	// declare a dependency on it (reverse edges).
	dependents map[string][]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		byID:       make(map[pkg.ID]int),
		providers:  make(map[string][]int),
		dependents: make(map[string][]int),
	}
}

// Add inserts a package into the graph. Packages are immutable once added.
// Returns ErrInvalidPackage for incomplete ids and ErrDuplicatePackage when
// the canonical id is already present.
func (g *Graph) Add(p pkg.Package) error {
	if p.ID.Format == "" || p.ID.Name == "" || p.ID.Repo == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPackage, p.ID)
	}
	if _, exists := g.byID[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePackage, p.ID)
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{pkg: p})
	g.byID[p.ID] = idx

	for _, sym := range p.Symbols() {
		g.providers[sym] = append(g.providers[sym], idx)
	}
	for _, d := range p.Depends {
		g.dependents[d.Target] = append(g.dependents[d.Target], idx)
	}
	return nil
}

// Len returns the number of concrete packages in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Package looks up a package by canonical id.
func (g *Graph) Package(id pkg.ID) (pkg.Package, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return pkg.Package{}, false
	}
	return g.nodes[idx].pkg, true
}

// Packages returns every package sorted by canonical id.
func (g *Graph) Packages() []pkg.Package {
	out := make([]pkg.Package, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.pkg)
	}
	slices.SortFunc(out, func(a, b pkg.Package) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// Symbols returns every known symbol (names and virtual capabilities),
// sorted.
func (g *Graph) Symbols() []string {
	seen := make(map[string]bool, len(g.providers)+len(g.dependents))
	for s := range g.providers {
		seen[s] = true
	}
	for s := range g.dependents {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// IsVirtual reports whether the symbol is satisfied only through provides
// declarations, never by a package of that name.
func (g *Graph) IsVirtual(symbol string) bool {
	idxs := g.providers[symbol]
	if len(idxs) == 0 {
		return false
	}
	for _, i := range idxs {
		if g.nodes[i].pkg.ID.Name == symbol {
			return false
		}
	}
	return true
}

// ResolveSymbol resolves a symbol to the concrete packages satisfying it
// under the constraint. The version constraint is applied against the
// provider's own version only when the provider carries the symbol as its
// name; virtual capabilities are unversioned aliases.
//
// The result is sorted by canonical id for determinism.
func (g *Graph) ResolveSymbol(symbol string, c pkg.Constraint) []pkg.ID {
	var out []pkg.ID
	for _, idx := range g.providers[symbol] {
		p := g.nodes[idx].pkg
		if p.ID.Name == symbol && !c.Matches(p.Version) {
			continue
		}
		out = append(out, p.ID)
	}
	slices.SortFunc(out, compareIDs)
	return out
}

// Dependencies returns the declared dependencies of a package.
func (g *Graph) Dependencies(id pkg.ID) ([]pkg.Dependency, error) {
	idx, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	return slices.Clone(g.nodes[idx].pkg.Depends), nil
}

// Dependents returns the packages declaring a dependency on any symbol the
// given package satisfies, honoring the dependents' version constraints.
// The result is sorted by canonical id.
func (g *Graph) Dependents(id pkg.ID) ([]pkg.ID, error) {
	idx, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	p := g.nodes[idx].pkg

	seen := make(map[pkg.ID]bool)
	var out []pkg.ID
	for _, sym := range p.Symbols() {
		for _, di := range g.dependents[sym] {
			dep := g.nodes[di].pkg
			if dep.ID == id || seen[dep.ID] {
				continue
			}
			for _, d := range dep.Depends {
				if d.Target != sym {
					continue
				}
				if p.ID.Name == sym && !d.Constraint.Matches(p.Version) {
					continue
				}
				seen[dep.ID] = true
				out = append(out, dep.ID)
				break
			}
		}
	}
	slices.SortFunc(out, compareIDs)
	return out, nil
}

// ConflictsWith returns the concrete packages in conflict with the given
// package, in either direction: symbols it declares conflicts against, and
// packages declaring conflicts against symbols it satisfies. The result is
// sorted by canonical id.
func (g *Graph) ConflictsWith(id pkg.ID) ([]pkg.ID, error) {
	idx, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	p := g.nodes[idx].pkg

	seen := make(map[pkg.ID]bool)
	var out []pkg.ID
	add := func(other pkg.ID) {
		if other != id && !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}

	// Outgoing: symbols this package conflicts with.
	for _, sym := range p.Conflicts {
		for _, oi := range g.providers[sym] {
			add(g.nodes[oi].pkg.ID)
		}
	}
	// Incoming: packages conflicting with a symbol this package satisfies.
	mine := p.Symbols()
	for _, n := range g.nodes {
		for _, sym := range n.pkg.Conflicts {
			if slices.Contains(mine, sym) {
				add(n.pkg.ID)
			}
		}
	}

	slices.SortFunc(out, compareIDs)
	return out, nil
}

// Neighbors returns the adjacent concrete packages along edges of the given
// kind, sorted by canonical id.
func (g *Graph) Neighbors(id pkg.ID, kind EdgeKind) ([]pkg.ID, error) {
	switch kind {
	case EdgeDepends:
		deps, err := g.Dependencies(id)
		if err != nil {
			return nil, err
		}
		seen := make(map[pkg.ID]bool)
		var out []pkg.ID
		for _, d := range deps {
			for _, target := range g.ResolveSymbol(d.Target, d.Constraint) {
				if !seen[target] {
					seen[target] = true
					out = append(out, target)
				}
			}
		}
		slices.SortFunc(out, compareIDs)
		return out, nil

	case EdgeConflicts:
		return g.ConflictsWith(id)

	case EdgeProvides:
		idx, ok := g.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
		}
		p := g.nodes[idx].pkg
		seen := make(map[pkg.ID]bool)
		var out []pkg.ID
		for _, sym := range p.Provides {
			for _, oi := range g.providers[sym] {
				other := g.nodes[oi].pkg.ID
				if other != id && !seen[other] {
					seen[other] = true
					out = append(out, other)
				}
			}
		}
		slices.SortFunc(out, compareIDs)
		return out, nil
	}
	return nil, fmt.Errorf("unknown edge kind %d", kind)
}

// Unsatisfied returns every (package, dependency) pair whose symbol no
// concrete package satisfies under the constraint. The index flags these
// rather than failing: resolution reports them only when reached.
func (g *Graph) Unsatisfied() []UnsatisfiedDep {
	var out []UnsatisfiedDep
	for _, n := range g.nodes {
		for _, d := range n.pkg.Depends {
			if len(g.ResolveSymbol(d.Target, d.Constraint)) == 0 {
				out = append(out, UnsatisfiedDep{Pkg: n.pkg.ID, Dep: d})
			}
		}
	}
	slices.SortFunc(out, func(a, b UnsatisfiedDep) int {
		if c := compareIDs(a.Pkg, b.Pkg); c != 0 {
			return c
		}
		return strings.Compare(a.Dep.Target, b.Dep.Target)
	})
	return out
}

// UnsatisfiedDep names a dependency that no package in the graph satisfies.
type UnsatisfiedDep struct {
	Pkg pkg.ID
	Dep pkg.Dependency
}

func compareIDs(a, b pkg.ID) int {
	return strings.Compare(a.String(), b.String())
}
