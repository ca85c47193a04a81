// Package state persists the installed set between runs.
//
// The store is the system's source of truth for what is installed at which
// version. The resolver reads an immutable snapshot from it; the CLI writes
// back only after a transaction commits, so a rolled-back transaction leaves
// the store untouched.
package state

import (
	"context"
	"sync"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/resolver"
)

// Store tracks installed packages.
type Store interface {
	// Snapshot returns the installed set. The returned map is a copy;
	// mutating it does not affect the store.
	Snapshot(ctx context.Context) (resolver.Installed, error)

	// Commit applies the outcome of a committed transaction: installs
	// insert, removals delete, upgrades replace the version. The whole
	// batch is applied atomically.
	Commit(ctx context.Context, ops []pkg.Operation) error

	Close() error
}

// Memory is an in-process store for tests and ephemeral runs.
type Memory struct {
	mu        sync.Mutex
	installed resolver.Installed
}

// NewMemory creates a memory store, optionally pre-seeded.
func NewMemory(seed resolver.Installed) *Memory {
	m := &Memory{installed: make(resolver.Installed, len(seed))}
	for id, v := range seed {
		m.installed[id] = v
	}
	return m
}

func (m *Memory) Snapshot(context.Context) (resolver.Installed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(resolver.Installed, len(m.installed))
	for id, v := range m.installed {
		out[id] = v
	}
	return out, nil
}

func (m *Memory) Commit(_ context.Context, ops []pkg.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case pkg.OpInstall, pkg.OpUpgrade:
			m.installed[op.ID] = op.Version
		case pkg.OpRemove:
			delete(m.installed, op.ID)
		default:
			return errors.New(errors.ErrCodeUnsupported,
				"unknown operation kind %q", op.Kind)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
