// Package resolver turns requested operations into an ordered, conflict-free
// plan against a graph snapshot.
//
// Resolution is deliberately simple: it expands the transitive closure of
// requested installs, checks conflicts and removal safety, and orders the
// result topologically. There is no backtracking search; an unsatisfiable or
// conflicting request fails fast with the packages implicated, and the caller
// adjusts the request.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// Installed is a snapshot of the installed set: canonical id to installed
// version. The resolver never mutates it.
type Installed map[pkg.ID]pkg.Version

// Request is a batch of operations to resolve together against one graph
// snapshot.
type Request struct {
	Ops       []pkg.Operation
	Installed Installed

	// RepoPriority ranks repositories for provider tie-breaking; higher
	// wins. Unlisted repositories rank zero.
	RepoPriority map[string]int

	// DegradedRepos names repositories missing from the snapshot because
	// indexing them failed. Unsatisfiable errors mention them, since the
	// missing provider may live there.
	DegradedRepos []string
}

// Resolve computes a plan for the request.
//
// Removals come first in the plan (dependents before their dependencies),
// then installs and upgrades in dependency order. Provider ties are broken
// deterministically: an installed provider satisfying the constraint wins
// outright, then highest version, then repository priority, then
// lexicographic id. The same graph and request always produce a
// byte-identical plan.
func Resolve(g *graph.Graph, req Request) (*Plan, error) {
	r := &resolution{
		graph:        g,
		req:          req,
		removing:     make(map[pkg.ID]bool),
		removeReason: make(map[pkg.ID]Reason),
		cascade:      make(map[pkg.ID]bool),
		chosen:       make(map[pkg.ID]pkg.Package),
		reasons:      make(map[pkg.ID]Reason),
		upgrades:     make(map[pkg.ID]pkg.Version),
		parent:       make(map[pkg.ID]pkg.ID),
	}

	// Removals are marked first so a batch removing both a dependent and
	// its dependency resolves regardless of request order: safety counts
	// only dependents surviving the whole request.
	for _, op := range req.Ops {
		if op.Kind == pkg.OpRemove {
			if err := r.addRemoval(op); err != nil {
				return nil, err
			}
		}
	}
	if err := r.closeRemovals(); err != nil {
		return nil, err
	}

	for _, op := range req.Ops {
		switch op.Kind {
		case pkg.OpRemove:
			// marked above
		case pkg.OpInstall, pkg.OpUpgrade:
			if err := r.addInstall(op); err != nil {
				return nil, err
			}
		default:
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"unknown operation kind %q", op.Kind)
		}
	}

	if err := r.expand(); err != nil {
		return nil, err
	}
	if err := r.checkRequestedProviders(); err != nil {
		return nil, err
	}
	if err := r.checkConflicts(); err != nil {
		return nil, err
	}
	return r.order()
}

// resolution is the working state of one Resolve call.
type resolution struct {
	graph *graph.Graph
	req   Request

	// removing is the full removal set, including cascaded dependents.
	removing map[pkg.ID]bool
	// removeOrder preserves first-seen order for deterministic cascades.
	removeOrder []pkg.ID
	// removeReason annotates each removal.
	removeReason map[pkg.ID]Reason
	// cascade records per removal whether dependents may be pulled in.
	cascade map[pkg.ID]bool

	// chosen is the install closure: requested installs and upgrades plus
	// every provider pulled in to satisfy a dependency.
	chosen   map[pkg.ID]pkg.Package
	reasons  map[pkg.ID]Reason
	upgrades map[pkg.ID]pkg.Version // id -> previously installed version
	queue    []pkg.ID
	parent   map[pkg.ID]pkg.ID
}

// addRemoval validates a removal request and marks it. Dependent closure and
// safety run afterwards in closeRemovals, once the whole removal set is known.
func (r *resolution) addRemoval(op pkg.Operation) error {
	if _, installed := r.req.Installed[op.ID]; !installed {
		return errors.New(errors.ErrCodeNotFound,
			"cannot remove %s: not installed", op.ID).
			WithPackages(op.ID.String())
	}
	if r.removing[op.ID] {
		if op.Cascade {
			r.cascade[op.ID] = true
		}
		return nil
	}
	r.markRemoval(op.ID, Reason{Kind: ReasonRequested})
	r.cascade[op.ID] = op.Cascade
	return nil
}

// closeRemovals closes the removal set over installed dependents,
// breadth-first so cascade order is the discovery order (dependents surface
// before what they depend on). Without cascade, surviving installed
// dependents make a removal unsafe and resolution fails listing them.
func (r *resolution) closeRemovals() error {
	for i := 0; i < len(r.removeOrder); i++ {
		id := r.removeOrder[i]
		dependents, err := r.installedDependents(id)
		if err != nil {
			return err
		}
		if len(dependents) == 0 {
			continue
		}
		if !r.cascade[id] {
			names := make([]string, len(dependents))
			for j, d := range dependents {
				names[j] = d.String()
			}
			return errors.New(errors.ErrCodeDependentsExist,
				"cannot remove %s: still required by %s",
				id, strings.Join(names, ", ")).
				WithPackages(names...)
		}
		for _, d := range dependents {
			if !r.removing[d] {
				r.markRemoval(d, Reason{Kind: ReasonCascade, Of: id.String()})
				r.cascade[d] = true
			}
		}
	}
	return nil
}

func (r *resolution) markRemoval(id pkg.ID, reason Reason) {
	r.removing[id] = true
	r.removeOrder = append(r.removeOrder, id)
	r.removeReason[id] = reason
}

// installedDependents returns the installed packages depending on any symbol
// the given package satisfies, excluding ones already being removed.
func (r *resolution) installedDependents(id pkg.ID) ([]pkg.ID, error) {
	all, err := r.graph.Dependents(id)
	if err != nil {
		// Installed but missing from the snapshot, e.g. its repository is
		// degraded. It must stay removable, so fall back to matching
		// dependents by name; its virtual capabilities are unknown.
		all = r.orphanDependents(id)
	}
	var out []pkg.ID
	for _, d := range all {
		if _, installed := r.req.Installed[d]; installed && !r.removing[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// orphanDependents scans the installed set for packages declaring a
// dependency on the given name.
func (r *resolution) orphanDependents(id pkg.ID) []pkg.ID {
	var out []pkg.ID
	for other := range r.req.Installed {
		p, ok := r.graph.Package(other)
		if !ok {
			continue
		}
		for _, dep := range p.Depends {
			if dep.Target == id.Name {
				out = append(out, other)
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b pkg.ID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// addInstall validates an install or upgrade request and seeds the closure.
// Installing a package already installed at a different version becomes an
// upgrade; at the same version it is a no-op.
func (r *resolution) addInstall(op pkg.Operation) error {
	p, ok := r.graph.Package(op.ID)
	if !ok {
		return r.unknownPackage(op.ID)
	}
	if r.removing[op.ID] {
		return errors.New(errors.ErrCodeInvalidInput,
			"%s is both installed and removed in the same request", op.ID).
			WithPackages(op.ID.String())
	}
	if op.Version != "" && op.Version != p.Version {
		return errors.New(errors.ErrCodeUnsatisfiable,
			"%s is available at version %s, not %s%s",
			op.ID, p.Version, op.Version, r.degradedNote()).
			WithPackages(op.ID.String())
	}

	current, installed := r.req.Installed[op.ID]
	switch op.Kind {
	case pkg.OpUpgrade:
		if !installed {
			return errors.New(errors.ErrCodeNotFound,
				"cannot upgrade %s: not installed", op.ID).
				WithPackages(op.ID.String())
		}
		if op.From != "" && op.From != current {
			return errors.New(errors.ErrCodeInvalidInput,
				"%s is installed at %s, not %s", op.ID, current, op.From).
				WithPackages(op.ID.String())
		}
		if current == p.Version {
			return nil // already at the target version
		}
		r.upgrades[op.ID] = current

	case pkg.OpInstall:
		if installed {
			if current == p.Version {
				return nil // already installed, nothing to do
			}
			r.upgrades[op.ID] = current
		}
	}

	if _, dup := r.chosen[op.ID]; dup {
		return nil
	}
	r.choose(p, Reason{Kind: ReasonRequested})
	return nil
}

func (r *resolution) choose(p pkg.Package, reason Reason) {
	r.chosen[p.ID] = p
	r.reasons[p.ID] = reason
	r.queue = append(r.queue, p.ID)
}

// expand grows the install closure: for every chosen package, every declared
// dependency must be satisfied by an installed survivor, an already chosen
// package, or a new provider picked by the tie-break.
func (r *resolution) expand() error {
	for len(r.queue) > 0 {
		id := r.queue[0]
		r.queue = r.queue[1:]
		p := r.chosen[id]

		for _, dep := range p.Depends {
			if err := r.satisfy(id, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// satisfy ensures one dependency of requester holds in the planned state.
func (r *resolution) satisfy(requester pkg.ID, dep pkg.Dependency) error {
	candidates := r.graph.ResolveSymbol(dep.Target, dep.Constraint)
	candidates = slices.DeleteFunc(candidates, func(id pkg.ID) bool {
		return r.removing[id]
	})
	if len(candidates) == 0 {
		return r.unsatisfiable(requester, dep)
	}

	// Already satisfied by the planned state: a chosen package or an
	// installed survivor wins over pulling anything new in. ResolveSymbol
	// matched the constraint against snapshot versions, so the installed
	// version is checked separately; an installed provider that is too old
	// does not satisfy and gets upgraded below if it wins.
	for _, c := range candidates {
		if _, ok := r.chosen[c]; ok {
			return nil
		}
		v, installed := r.req.Installed[c]
		if installed && (c.Name != dep.Target || dep.Constraint.Matches(v)) {
			return nil
		}
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if r.better(c, winner) {
			winner = c
		}
	}

	p, _ := r.graph.Package(winner)
	if current, installed := r.req.Installed[winner]; installed && current != p.Version {
		r.upgrades[winner] = current
	}
	r.parent[winner] = requester
	r.choose(p, Reason{Kind: ReasonDependency, Of: requester.String()})
	return nil
}

// better reports whether candidate a beats b under the provider tie-break:
// higher version first, then higher repository priority, then the
// lexicographically smaller canonical id.
func (r *resolution) better(a, b pkg.ID) bool {
	pa, _ := r.graph.Package(a)
	pb, _ := r.graph.Package(b)
	if c := pa.Version.Compare(pb.Version); c != 0 {
		return c > 0
	}
	if pa.ID.Repo != pb.ID.Repo {
		prioA, prioB := r.req.RepoPriority[pa.ID.Repo], r.req.RepoPriority[pb.ID.Repo]
		if prioA != prioB {
			return prioA > prioB
		}
	}
	return a.String() < b.String()
}

// unsatisfiable builds the failure for a dependency nothing can satisfy,
// implicating the whole requirement chain back to the original request.
func (r *resolution) unsatisfiable(requester pkg.ID, dep pkg.Dependency) error {
	chain := []string{requester.String()}
	for cur := requester; ; {
		next, ok := r.parent[cur]
		if !ok {
			break
		}
		chain = append(chain, next.String())
		cur = next
	}
	slices.Reverse(chain)

	want := dep.Target
	if !dep.Constraint.Any() {
		want = fmt.Sprintf("%s (%s)", dep.Target, dep.Constraint)
	}
	return errors.New(errors.ErrCodeUnsatisfiable,
		"no package satisfies %s, required via %s%s",
		want, strings.Join(chain, " -> "), r.degradedNote()).
		WithPackages(chain...)
}

func (r *resolution) unknownPackage(id pkg.ID) error {
	return errors.New(errors.ErrCodeUnsatisfiable,
		"unknown package %s%s", id, r.degradedNote()).
		WithPackages(id.String())
}

// degradedNote appends the degraded repositories to resolution failures, so
// a missing provider that lives in an unreachable repository is explainable.
func (r *resolution) degradedNote() string {
	if len(r.req.DegradedRepos) == 0 {
		return ""
	}
	return fmt.Sprintf(" (degraded repositories: %s)",
		strings.Join(r.req.DegradedRepos, ", "))
}

// checkRequestedProviders fails when two freshly requested packages both
// provide the same virtual capability. The tie-break picks one provider per
// capability; explicitly requesting two interchangeable ones overrides it in
// both directions at once, which is a conflict the caller must settle.
func (r *resolution) checkRequestedProviders() error {
	providers := make(map[string][]pkg.ID)
	for id, p := range r.chosen {
		if r.reasons[id].Kind != ReasonRequested {
			continue
		}
		if _, installed := r.req.Installed[id]; installed {
			// Upgrading providers that already coexist is not a new
			// conflict.
			continue
		}
		for _, sym := range p.Provides {
			if sym == p.ID.Name {
				continue
			}
			providers[sym] = append(providers[sym], id)
		}
	}

	syms := make([]string, 0, len(providers))
	for sym := range providers {
		syms = append(syms, sym)
	}
	slices.Sort(syms)

	for _, sym := range syms {
		ids := providers[sym]
		if len(ids) < 2 {
			continue
		}
		slices.SortFunc(ids, func(a, b pkg.ID) int {
			return strings.Compare(a.String(), b.String())
		})
		return errors.New(errors.ErrCodeConflict,
			"%s and %s both provide %q and were both requested",
			ids[0], ids[1], sym).
			WithPackages(ids[0].String(), ids[1].String())
	}
	return nil
}

// checkConflicts verifies no package in the planned state conflicts with
// another, in either declaration direction. The planned state is the install
// closure plus every installed survivor.
func (r *resolution) checkConflicts() error {
	planned := func(id pkg.ID) bool {
		if r.removing[id] {
			return false
		}
		if _, ok := r.chosen[id]; ok {
			return true
		}
		_, installed := r.req.Installed[id]
		return installed
	}

	ids := make([]pkg.ID, 0, len(r.chosen))
	for id := range r.chosen {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b pkg.ID) int {
		return strings.Compare(a.String(), b.String())
	})

	for _, id := range ids {
		others, err := r.graph.ConflictsWith(id)
		if err != nil {
			return r.unknownPackage(id)
		}
		for _, other := range others {
			if planned(other) {
				return errors.New(errors.ErrCodeConflict,
					"%s conflicts with %s", id, other).
					WithPackages(id.String(), other.String())
			}
		}
	}
	return nil
}

// order produces the final plan: removals first in reverse dependency order
// (dependents before what they depend on), then installs and upgrades in
// dependency order. A dependency cycle in the install closure is an error.
func (r *resolution) order() (*Plan, error) {
	plan := &Plan{}
	rank := 0
	add := func(op pkg.Operation, reason Reason) {
		plan.Steps = append(plan.Steps, Step{Op: op, Rank: rank, Reason: reason})
		rank++
	}

	if len(r.removing) > 0 {
		subset := make([]pkg.ID, 0, len(r.removeOrder))
		var orphans []pkg.ID
		for _, id := range r.removeOrder {
			if _, ok := r.graph.Package(id); ok {
				subset = append(subset, id)
			} else {
				orphans = append(orphans, id)
			}
		}
		ordered, err := r.graph.TopologicalOrder(subset)
		if err != nil {
			return nil, wrapCycle(err)
		}
		slices.Reverse(ordered)
		// Orphans have no known dependency edges; any dependents the
		// installed set revealed were cascaded into the in-graph part, so
		// orphans go last.
		ordered = append(ordered, orphans...)
		for _, id := range ordered {
			op := pkg.Remove(id)
			op.From = r.req.Installed[id]
			add(op, r.removeReason[id])
		}
	}

	if len(r.chosen) > 0 {
		subset := make([]pkg.ID, 0, len(r.chosen))
		for id := range r.chosen {
			subset = append(subset, id)
		}
		ordered, err := r.graph.TopologicalOrder(subset)
		if err != nil {
			return nil, wrapCycle(err)
		}
		for _, id := range ordered {
			p := r.chosen[id]
			var op pkg.Operation
			if from, ok := r.upgrades[id]; ok {
				op = pkg.Upgrade(id, from, p.Version)
			} else {
				op = pkg.Install(id, p.Version)
			}
			add(op, r.reasons[id])
		}
	}

	return plan, nil
}

// wrapCycle lifts a graph cycle into a resolution error implicating the
// cycle members.
func wrapCycle(err error) error {
	var ce *graph.CycleError
	if errors.As(err, &ce) {
		ids := make([]string, len(ce.Cycle))
		for i, id := range ce.Cycle {
			ids[i] = id.String()
		}
		return errors.Wrap(errors.ErrCodeCycle, err, "resolution aborted").
			WithPackages(ids...)
	}
	return err
}
