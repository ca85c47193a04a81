package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

func id(name string) pkg.ID {
	return pkg.ID{Format: "rpm", Name: name, Repo: "core"}
}

func TestInverse(t *testing.T) {
	install := pkg.Install(id("a"), "1.0")
	inv := Inverse(install)
	assert.Equal(t, pkg.OpRemove, inv.Kind)
	assert.Equal(t, pkg.Version("1.0"), inv.From)

	// Undoing the inverse yields the original install again.
	back := Inverse(inv)
	assert.Equal(t, install, back)

	up := pkg.Upgrade(id("a"), "1.0", "2.0")
	down := Inverse(up)
	assert.Equal(t, pkg.Version("2.0"), down.From)
	assert.Equal(t, pkg.Version("1.0"), down.Version)
}

func TestMemory_ApplyUndo(t *testing.T) {
	m := NewMemory("rpm", nil)
	ctx := context.Background()

	tok, err := m.Apply(ctx, pkg.Install(id("a"), "1.0"))
	require.NoError(t, err)
	assert.Equal(t, pkg.Version("1.0"), m.Installed()[id("a")])

	require.NoError(t, m.Undo(ctx, tok))
	assert.Empty(t, m.Installed())
}

func TestMemory_UpgradeRoundTrip(t *testing.T) {
	m := NewMemory("rpm", map[pkg.ID]pkg.Version{id("a"): "1.0"})
	ctx := context.Background()

	tok, err := m.Apply(ctx, pkg.Upgrade(id("a"), "1.0", "2.0"))
	require.NoError(t, err)
	assert.Equal(t, pkg.Version("2.0"), m.Installed()[id("a")])

	require.NoError(t, m.Undo(ctx, tok))
	assert.Equal(t, pkg.Version("1.0"), m.Installed()[id("a")])
}

func TestMemory_Preconditions(t *testing.T) {
	m := NewMemory("rpm", map[pkg.ID]pkg.Version{id("a"): "1.0"})
	ctx := context.Background()

	_, err := m.Apply(ctx, pkg.Install(id("a"), "2.0"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "got %v", err)

	_, err = m.Apply(ctx, pkg.Remove(id("ghost")))
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)

	_, err = m.Apply(ctx, pkg.Upgrade(id("a"), "0.9", "2.0"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "got %v", err)

	// Failed operations leave the installed set untouched.
	assert.Equal(t, map[pkg.ID]pkg.Version{id("a"): "1.0"}, m.Installed())
}

func TestMemory_FailureInjection(t *testing.T) {
	m := NewMemory("rpm", nil)
	op := pkg.Install(id("a"), "1.0")
	m.FailOn[op.String()] = errors.New(errors.ErrCodeInternal, "disk full")

	_, err := m.Apply(context.Background(), op)
	require.Error(t, err)
	assert.Empty(t, m.Installed())
}

func TestRegistry(t *testing.T) {
	rpm := NewMemory("rpm", nil)
	apt := NewMemory("apt", nil)
	reg := NewRegistry(rpm, apt)

	assert.Equal(t, []string{"apt", "rpm"}, reg.Formats())

	tok, err := reg.Apply(context.Background(), pkg.Install(id("a"), "1.0"))
	require.NoError(t, err)
	assert.Equal(t, "rpm", tok.Format)
	assert.Len(t, rpm.Installed(), 1)
	assert.Empty(t, apt.Installed())

	require.NoError(t, reg.Undo(context.Background(), tok))
	assert.Empty(t, rpm.Installed())

	_, err = reg.Apply(context.Background(), pkg.Install(
		pkg.ID{Format: "nix", Name: "a", Repo: "core"}, "1.0"))
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupported), "got %v", err)
}

func TestExec_TemplateExpansion(t *testing.T) {
	var got [][]string
	e, err := NewExec(ExecConfig{
		Format:  "rpm",
		Install: []string{"dnf", "install", "-y", "{name}-{version}"},
		Remove:  []string{"dnf", "remove", "-y", "{name}"},
	})
	require.NoError(t, err)
	e.run = func(ctx context.Context, argv []string) error {
		got = append(got, argv)
		return nil
	}

	ctx := context.Background()
	tok, err := e.Apply(ctx, pkg.Install(id("emacs"), "30.1-2"))
	require.NoError(t, err)
	require.NoError(t, e.Undo(ctx, tok))

	require.Len(t, got, 2)
	assert.Equal(t, []string{"dnf", "install", "-y", "emacs-30.1-2"}, got[0])
	assert.Equal(t, []string{"dnf", "remove", "-y", "emacs"}, got[1])
}

func TestExec_FailureWrapped(t *testing.T) {
	e, err := NewExec(ExecConfig{
		Format:  "rpm",
		Install: []string{"dnf", "install", "{name}"},
		Remove:  []string{"dnf", "remove", "{name}"},
	})
	require.NoError(t, err)
	e.run = func(ctx context.Context, argv []string) error {
		return errors.New(errors.ErrCodeInternal, "no such package")
	}

	_, err = e.Apply(context.Background(), pkg.Install(id("ghost"), "1.0"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeStepFailed), "got %v", err)
	assert.Contains(t, errors.ImplicatedPackages(err), "rpm:ghost@core")
}

func TestExec_InvalidConfig(t *testing.T) {
	_, err := NewExec(ExecConfig{Format: "rpm"})
	assert.Error(t, err)

	_, err = NewExec(ExecConfig{Install: []string{"x"}, Remove: []string{"y"}})
	assert.Error(t, err)
}
