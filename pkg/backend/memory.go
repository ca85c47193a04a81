package backend

import (
	"context"
	"sync"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// Memory is an in-process applier that tracks the installed set in a map.
// It backs the test suite and dry-run rehearsals, and checks the same
// preconditions a real backend would: installing over an existing package,
// or removing a missing one, fails.
type Memory struct {
	format string

	mu        sync.Mutex
	installed map[pkg.ID]pkg.Version

	// FailOn injects a failure for a specific operation (keyed by its
	// String form). The operation has no effect when it fails.
	FailOn map[string]error
}

// NewMemory creates a memory applier for the given format, optionally
// pre-seeded with installed packages.
func NewMemory(format string, installed map[pkg.ID]pkg.Version) *Memory {
	m := &Memory{
		format:    format,
		installed: make(map[pkg.ID]pkg.Version, len(installed)),
		FailOn:    make(map[string]error),
	}
	for id, v := range installed {
		m.installed[id] = v
	}
	return m
}

func (m *Memory) Format() string { return m.format }

// Installed returns a copy of the current installed set.
func (m *Memory) Installed() map[pkg.ID]pkg.Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[pkg.ID]pkg.Version, len(m.installed))
	for id, v := range m.installed {
		out[id] = v
	}
	return out
}

// Apply performs the operation against the in-memory installed set.
func (m *Memory) Apply(ctx context.Context, op pkg.Operation) (UndoToken, error) {
	if err := ctx.Err(); err != nil {
		return UndoToken{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailOn[op.String()]; err != nil {
		return UndoToken{}, err
	}
	if err := m.perform(op); err != nil {
		return UndoToken{}, err
	}
	return UndoToken{Format: m.format, Op: Inverse(op)}, nil
}

// Undo replays the inverse operation carried by the token.
func (m *Memory) Undo(ctx context.Context, tok UndoToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailOn[tok.Op.String()]; err != nil {
		return err
	}
	return m.perform(tok.Op)
}

// perform mutates the installed set; the caller holds the lock.
func (m *Memory) perform(op pkg.Operation) error {
	switch op.Kind {
	case pkg.OpInstall:
		if v, exists := m.installed[op.ID]; exists {
			return errors.New(errors.ErrCodeInvalidInput,
				"%s is already installed at %s", op.ID, v).
				WithPackages(op.ID.String())
		}
		m.installed[op.ID] = op.Version

	case pkg.OpRemove:
		if _, exists := m.installed[op.ID]; !exists {
			return errors.New(errors.ErrCodeNotFound,
				"%s is not installed", op.ID).
				WithPackages(op.ID.String())
		}
		delete(m.installed, op.ID)

	case pkg.OpUpgrade:
		current, exists := m.installed[op.ID]
		if !exists {
			return errors.New(errors.ErrCodeNotFound,
				"%s is not installed", op.ID).
				WithPackages(op.ID.String())
		}
		if current != op.From {
			return errors.New(errors.ErrCodeInvalidInput,
				"%s is installed at %s, not %s", op.ID, current, op.From).
				WithPackages(op.ID.String())
		}
		m.installed[op.ID] = op.Version

	default:
		return errors.New(errors.ErrCodeUnsupported,
			"unknown operation kind %q", op.Kind)
	}
	return nil
}

var _ Applier = (*Memory)(nil)
