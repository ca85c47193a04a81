// Package backend executes planned operations against a package format's
// native tooling.
//
// An Applier performs one operation at a time and returns an undo token the
// transaction engine can replay to reverse it. Appliers are registered per
// format; a plan mixing formats is dispatched step by step to the matching
// applier.
package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// UndoToken captures how to reverse one applied operation. Tokens are opaque
// to the transaction engine: it stores them in apply order and hands them
// back to the applier in reverse order on rollback.
type UndoToken struct {
	// Format routes the token back to the applier that produced it.
	Format string `json:"format"`
	// Op is the inverse operation to perform.
	Op pkg.Operation `json:"op"`
}

// Inverse returns the operation that reverses op: installs are removed,
// removals reinstalled at the removed version, upgrades downgraded.
func Inverse(op pkg.Operation) pkg.Operation {
	switch op.Kind {
	case pkg.OpInstall:
		inv := pkg.Remove(op.ID)
		inv.From = op.Version
		return inv
	case pkg.OpRemove:
		return pkg.Install(op.ID, op.From)
	case pkg.OpUpgrade:
		return pkg.Upgrade(op.ID, op.Version, op.From)
	}
	return pkg.Operation{}
}

// Applier executes operations for one package format.
type Applier interface {
	// Format names the package format this applier handles.
	Format() string

	// Apply performs the operation and returns a token that reverses it.
	// An error means the operation had no effect (or was rolled back
	// internally); the engine never receives a token for a failed step.
	Apply(ctx context.Context, op pkg.Operation) (UndoToken, error)

	// Undo reverses a previously applied operation.
	Undo(ctx context.Context, tok UndoToken) error
}

// Registry dispatches operations to appliers by package format.
type Registry struct {
	byFormat map[string]Applier
}

// NewRegistry builds a registry. Registering two appliers for the same
// format is a programming error and panics.
func NewRegistry(appliers ...Applier) *Registry {
	r := &Registry{byFormat: make(map[string]Applier, len(appliers))}
	for _, a := range appliers {
		if _, dup := r.byFormat[a.Format()]; dup {
			panic(fmt.Sprintf("backend: duplicate applier for format %q", a.Format()))
		}
		r.byFormat[a.Format()] = a
	}
	return r
}

// For returns the applier handling the given format.
func (r *Registry) For(format string) (Applier, error) {
	a, ok := r.byFormat[format]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported,
			"no backend registered for format %q (have: %s)",
			format, strings.Join(r.Formats(), ", "))
	}
	return a, nil
}

// Formats returns the registered formats, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Apply routes the operation to the applier for its format.
func (r *Registry) Apply(ctx context.Context, op pkg.Operation) (UndoToken, error) {
	a, err := r.For(op.ID.Format)
	if err != nil {
		return UndoToken{}, err
	}
	return a.Apply(ctx, op)
}

// Undo routes the token back to the applier that produced it.
func (r *Registry) Undo(ctx context.Context, tok UndoToken) error {
	a, err := r.For(tok.Format)
	if err != nil {
		return err
	}
	return a.Undo(ctx, tok)
}
