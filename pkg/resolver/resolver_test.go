package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
	"github.com/fsmtools/fsm/pkg/pkg"
)

func id(name string) pkg.ID {
	return pkg.ID{Format: "rpm", Name: name, Repo: "core"}
}

func repoID(name, repo string) pkg.ID {
	return pkg.ID{Format: "rpm", Name: name, Repo: repo}
}

func mk(p pkg.ID, version string, deps ...string) pkg.Package {
	out := pkg.Package{ID: p, Version: pkg.Version(version)}
	for _, d := range deps {
		dep, err := pkg.ParseDependency(d)
		if err != nil {
			panic(err)
		}
		out.Depends = append(out.Depends, dep)
	}
	return out
}

func build(t *testing.T, pkgs ...pkg.Package) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, p := range pkgs {
		require.NoError(t, g.Add(p))
	}
	return g
}

func ops(plan *Plan) []string {
	out := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		out[i] = s.Op.String()
	}
	return out
}

func TestResolve_InstallClosureOrdered(t *testing.T) {
	// a depends on b, b depends on c. Installing a must install c first,
	// then b, then a.
	g := build(t,
		mk(id("a"), "1.0", "b"),
		mk(id("b"), "1.0", "c"),
		mk(id("c"), "1.0"),
	)

	plan, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("a"), "")}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"install rpm:c@core 1.0",
		"install rpm:b@core 1.0",
		"install rpm:a@core 1.0",
	}, ops(plan))

	for i, s := range plan.Steps {
		assert.Equal(t, i, s.Rank)
	}
	assert.Equal(t, ReasonDependency, plan.Steps[0].Reason.Kind)
	assert.Equal(t, "rpm:b@core", plan.Steps[0].Reason.Of)
	assert.Equal(t, ReasonRequested, plan.Steps[2].Reason.Kind)
}

func TestResolve_SatisfiedByInstalled(t *testing.T) {
	g := build(t,
		mk(id("a"), "1.0", "b"),
		mk(id("b"), "1.0"),
	)

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("a"), "")},
		Installed: Installed{id("b"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"install rpm:a@core 1.0"}, ops(plan))
}

func TestResolve_InstallAlreadyInstalled_NoOp(t *testing.T) {
	g := build(t, mk(id("a"), "1.0"))

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("a"), "")},
		Installed: Installed{id("a"): "1.0"},
	})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestResolve_InstallBecomesUpgrade(t *testing.T) {
	g := build(t, mk(id("emacs"), "30.1-2", "emacs-core"), mk(id("emacs-core"), "30.1-2"))

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("emacs"), "")},
		Installed: Installed{id("emacs"): "29.4", id("emacs-core"): "30.1-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"upgrade rpm:emacs@core 29.4->30.1-2"}, ops(plan))
}

func TestResolve_UpgradeNotInstalled(t *testing.T) {
	g := build(t, mk(id("a"), "2.0"))

	_, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Upgrade(id("a"), "1.0", "2.0")}})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestResolve_VirtualProviderTieBreak(t *testing.T) {
	// Two providers of the virtual symbol "editor": the higher version
	// wins regardless of id order.
	vim := mk(id("vim"), "9.1")
	vim.Provides = []string{"editor"}
	nano := mk(id("nano"), "7.2")
	nano.Provides = []string{"editor"}

	g := build(t, mk(id("ide"), "1.0", "editor"), vim, nano)

	plan, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("ide"), "")}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"install rpm:vim@core 9.1",
		"install rpm:ide@core 1.0",
	}, ops(plan))
}

func TestResolve_TieBreakRepoPriority(t *testing.T) {
	a := mk(repoID("lib", "updates"), "1.0")
	b := mk(repoID("lib", "core"), "1.0")
	g := build(t, mk(id("app"), "1.0", "lib"), a, b)

	plan, err := Resolve(g, Request{
		Ops:          []pkg.Operation{pkg.Install(id("app"), "")},
		RepoPriority: map[string]int{"updates": 10, "core": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "install rpm:lib@updates 1.0", ops(plan)[0])
}

func TestResolve_TieBreakLexicographic(t *testing.T) {
	// Same version, same priority: the smaller canonical id wins.
	g := build(t,
		mk(id("app"), "1.0", "lib"),
		mk(repoID("lib", "b"), "1.0"),
		mk(repoID("lib", "a"), "1.0"),
	)

	plan, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("app"), "")}})
	require.NoError(t, err)
	assert.Equal(t, "install rpm:lib@a 1.0", ops(plan)[0])
}

func TestResolve_Conflict(t *testing.T) {
	// x and y both provide "editor" and declare conflicts against each
	// other. Requesting both must fail naming both, with nothing planned.
	x := mk(id("x"), "1.0")
	x.Provides = []string{"editor"}
	x.Conflicts = []string{"y"}
	y := mk(id("y"), "1.0")
	y.Provides = []string{"editor"}
	y.Conflicts = []string{"x"}

	g := build(t, x, y)

	_, err := Resolve(g, Request{Ops: []pkg.Operation{
		pkg.Install(id("x"), ""),
		pkg.Install(id("y"), ""),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)
	assert.ElementsMatch(t, []string{"rpm:x@core", "rpm:y@core"}, errors.ImplicatedPackages(err))
}

func TestResolve_DoubleRequestedProviders(t *testing.T) {
	// x and y both provide "editor" without declaring conflicts. Requesting
	// both at once overrides the provider tie-break in both directions and
	// must fail naming both.
	x := mk(id("x"), "1.0")
	x.Provides = []string{"editor"}
	y := mk(id("y"), "1.0")
	y.Provides = []string{"editor"}

	g := build(t, x, y)

	_, err := Resolve(g, Request{Ops: []pkg.Operation{
		pkg.Install(id("x"), ""),
		pkg.Install(id("y"), ""),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)
	assert.ElementsMatch(t, []string{"rpm:x@core", "rpm:y@core"}, errors.ImplicatedPackages(err))

	// Either one alone is fine.
	plan, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("x"), "")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"install rpm:x@core 1.0"}, ops(plan))
}

func TestResolve_ConflictWithInstalled(t *testing.T) {
	x := mk(id("x"), "1.0")
	x.Conflicts = []string{"y"}
	y := mk(id("y"), "1.0")

	g := build(t, x, y)

	_, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("x"), "")},
		Installed: Installed{id("y"): "1.0"},
	})
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)
}

func TestResolve_ConflictClearedByRemoval(t *testing.T) {
	// Removing the conflicting package in the same request makes the
	// install valid.
	x := mk(id("x"), "1.0")
	x.Conflicts = []string{"y"}
	y := mk(id("y"), "1.0")

	g := build(t, x, y)

	plan, err := Resolve(g, Request{
		Ops: []pkg.Operation{
			pkg.Remove(id("y")),
			pkg.Install(id("x"), ""),
		},
		Installed: Installed{id("y"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remove rpm:y@core",
		"install rpm:x@core 1.0",
	}, ops(plan))
}

func TestResolve_RemoveWithDependents(t *testing.T) {
	// b depends on a; both installed. Plain removal of a must fail naming
	// b; cascade removes b first, then a.
	g := build(t,
		mk(id("a"), "1.0"),
		mk(id("b"), "1.0", "a"),
	)
	installed := Installed{id("a"): "1.0", id("b"): "1.0"}

	_, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Remove(id("a"))},
		Installed: installed,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDependentsExist), "got %v", err)
	assert.Equal(t, []string{"rpm:b@core"}, errors.ImplicatedPackages(err))

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.CascadeRemove(id("a"))},
		Installed: installed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remove rpm:b@core",
		"remove rpm:a@core",
	}, ops(plan))
	assert.Equal(t, ReasonCascade, plan.Steps[0].Reason.Kind)
	assert.Equal(t, "rpm:a@core", plan.Steps[0].Reason.Of)
	assert.Equal(t, pkg.Version("1.0"), plan.Steps[0].Op.From)
}

func TestResolve_BatchRemovalOrderIndependent(t *testing.T) {
	// b depends on a; both installed and both removed in one request.
	// Safety counts only dependents surviving the whole request, so the
	// batch resolves identically in either request order.
	g := build(t,
		mk(id("a"), "1.0"),
		mk(id("b"), "1.0", "a"),
	)
	installed := Installed{id("a"): "1.0", id("b"): "1.0"}

	for _, reqOps := range [][]pkg.Operation{
		{pkg.Remove(id("a")), pkg.Remove(id("b"))},
		{pkg.Remove(id("b")), pkg.Remove(id("a"))},
	} {
		plan, err := Resolve(g, Request{Ops: reqOps, Installed: installed})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"remove rpm:b@core",
			"remove rpm:a@core",
		}, ops(plan))
		assert.Equal(t, ReasonRequested, plan.Steps[0].Reason.Kind)
		assert.Equal(t, ReasonRequested, plan.Steps[1].Reason.Kind)
	}
}

func TestResolve_CascadeTransitive(t *testing.T) {
	// c depends on b depends on a: cascading a removes c, b, a in order.
	g := build(t,
		mk(id("a"), "1.0"),
		mk(id("b"), "1.0", "a"),
		mk(id("c"), "1.0", "b"),
	)

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.CascadeRemove(id("a"))},
		Installed: Installed{id("a"): "1.0", id("b"): "1.0", id("c"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remove rpm:c@core",
		"remove rpm:b@core",
		"remove rpm:a@core",
	}, ops(plan))
}

func TestResolve_RemoveNotInstalled(t *testing.T) {
	g := build(t, mk(id("a"), "1.0"))

	_, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Remove(id("a"))}})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestResolve_RemoveOrphanedPackage(t *testing.T) {
	// ghost is installed but its repository dropped out of the snapshot.
	// It must stay removable, and dependents declared by in-graph packages
	// still guard it.
	g := build(t, mk(id("app"), "1.0", "ghost"))

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Remove(id("ghost"))},
		Installed: Installed{id("ghost"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"remove rpm:ghost@core"}, ops(plan))
	assert.Equal(t, pkg.Version("1.0"), plan.Steps[0].Op.From)

	installed := Installed{id("ghost"): "1.0", id("app"): "1.0"}
	_, err = Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Remove(id("ghost"))},
		Installed: installed,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDependentsExist), "got %v", err)
	assert.Equal(t, []string{"rpm:app@core"}, errors.ImplicatedPackages(err))

	plan, err = Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.CascadeRemove(id("ghost"))},
		Installed: installed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remove rpm:app@core",
		"remove rpm:ghost@core",
	}, ops(plan))
}

func TestResolve_InstalledProviderTooOld(t *testing.T) {
	// lib is installed at 1.0, but app needs lib >= 2.0. The installed
	// copy does not satisfy; it is upgraded to the snapshot version.
	g := build(t,
		mk(id("app"), "1.0", "lib (>= 2.0)"),
		mk(id("lib"), "2.5"),
	)

	plan, err := Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("app"), "")},
		Installed: Installed{id("lib"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"upgrade rpm:lib@core 1.0->2.5",
		"install rpm:app@core 1.0",
	}, ops(plan))

	// An installed version that satisfies the constraint is left alone.
	plan, err = Resolve(g, Request{
		Ops:       []pkg.Operation{pkg.Install(id("app"), "")},
		Installed: Installed{id("lib"): "2.5"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"install rpm:app@core 1.0"}, ops(plan))
}

func TestResolve_Unsatisfiable(t *testing.T) {
	g := build(t,
		mk(id("a"), "1.0", "b"),
		mk(id("b"), "1.0", "ghost (>= 2.0)"),
	)

	_, err := Resolve(g, Request{
		Ops:           []pkg.Operation{pkg.Install(id("a"), "")},
		DegradedRepos: []string{"extras"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnsatisfiable), "got %v", err)
	// The chain runs from the request down to the package with the
	// missing dependency.
	assert.Equal(t, []string{"rpm:a@core", "rpm:b@core"}, errors.ImplicatedPackages(err))
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "extras")
}

func TestResolve_UnknownPackage(t *testing.T) {
	g := build(t, mk(id("a"), "1.0"))

	_, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("ghost"), "")}})
	assert.True(t, errors.Is(err, errors.ErrCodeUnsatisfiable), "got %v", err)
}

func TestResolve_WrongVersionRequested(t *testing.T) {
	g := build(t, mk(id("a"), "2.0"))

	_, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("a"), "1.0")}})
	assert.True(t, errors.Is(err, errors.ErrCodeUnsatisfiable), "got %v", err)
}

func TestResolve_Cycle(t *testing.T) {
	g := build(t,
		mk(id("a"), "1.0", "b"),
		mk(id("b"), "1.0", "c"),
		mk(id("c"), "1.0", "a"),
	)

	_, err := Resolve(g, Request{Ops: []pkg.Operation{pkg.Install(id("a"), "")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle), "got %v", err)
	assert.Len(t, errors.ImplicatedPackages(err), 3)
}

func TestResolve_RemovalsBeforeInstalls(t *testing.T) {
	g := build(t,
		mk(id("old"), "1.0"),
		mk(id("new"), "2.0"),
	)

	plan, err := Resolve(g, Request{
		Ops: []pkg.Operation{
			pkg.Install(id("new"), ""),
			pkg.Remove(id("old")),
		},
		Installed: Installed{id("old"): "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remove rpm:old@core",
		"install rpm:new@core 2.0",
	}, ops(plan))
}

func TestResolve_Deterministic(t *testing.T) {
	vim := mk(id("vim"), "9.1")
	vim.Provides = []string{"editor"}
	nano := mk(id("nano"), "9.1")
	nano.Provides = []string{"editor"}

	g := build(t,
		mk(id("app"), "1.0", "editor", "lib"),
		mk(id("lib"), "1.0"),
		vim, nano,
	)
	req := Request{Ops: []pkg.Operation{pkg.Install(id("app"), "")}}

	first, err := Resolve(g, req)
	require.NoError(t, err)
	d1, err := first.Digest()
	require.NoError(t, err)

	for range 5 {
		plan, err := Resolve(g, req)
		require.NoError(t, err)
		d, err := plan.Digest()
		require.NoError(t, err)
		assert.Equal(t, d1, d)
		assert.Equal(t, ops(first), ops(plan))
	}
}
