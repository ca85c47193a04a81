// Package transaction applies resolved plans atomically.
//
// A transaction walks a plan's steps in order, collecting an undo token for
// every applied step. When a step fails, the already applied steps are
// reversed in strict reverse order, so the installed set returns to exactly
// its pre-transaction state. A transaction ends in one of three terminal
// states: committed, rolled back, or failed (an undo itself failed and the
// system is left in a documented partial state).
package transaction

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fsmtools/fsm/pkg/backend"
	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/journal"
	"github.com/fsmtools/fsm/pkg/resolver"
)

// State is the lifecycle state of a transaction.
//
// Transitions: pending -> applying -> committed, or applying -> rolled_back
// (a step failed and every applied step was undone), or applying -> failed
// (an undo failed; operator intervention is needed). The three terminal
// states are absorbing: further Apply or Rollback calls do not touch the
// system again and return the transaction's recorded outcome.
type State string

const (
	StatePending    State = "pending"
	StateApplying   State = "applying"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateFailed
}

// AppliedStep pairs a plan step with the undo token its applier returned.
type AppliedStep struct {
	Step resolver.Step
	Undo backend.UndoToken
}

// Options configures an engine.
type Options struct {
	// Journal receives transaction events. Defaults to a no-op recorder.
	Journal journal.Recorder
	// Logger receives progress logs. Defaults to a discarding logger.
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	opts := o
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Engine creates and runs transactions against a backend registry.
type Engine struct {
	backends *backend.Registry
	opts     Options
}

// NewEngine builds an engine.
func NewEngine(backends *backend.Registry, opts Options) *Engine {
	return &Engine{backends: backends, opts: opts.withDefaults()}
}

// Begin creates a pending transaction for the plan. The plan is consumed by
// exactly one transaction; begin a new transaction from a fresh plan rather
// than re-running one.
func (e *Engine) Begin(plan *resolver.Plan) *Transaction {
	return &Transaction{
		id:       uuid.NewString(),
		plan:     plan,
		backends: e.backends,
		journal:  e.opts.Journal,
		logger:   e.opts.Logger,
		state:    StatePending,
	}
}

// Run begins a transaction and applies it to completion.
func (e *Engine) Run(ctx context.Context, plan *resolver.Plan) (*Transaction, error) {
	tx := e.Begin(plan)
	return tx, tx.Apply(ctx)
}

// Transaction is one execution of a plan. Safe for concurrent inspection;
// Apply and Rollback serialize internally.
type Transaction struct {
	id       string
	plan     *resolver.Plan
	backends *backend.Registry
	journal  journal.Recorder
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	cursor  int
	applied []AppliedStep
	seq     int
	outcome error
}

// ID returns the transaction's unique id.
func (t *Transaction) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cursor returns how many plan steps have been applied.
func (t *Transaction) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Applied returns the applied steps in apply order.
func (t *Transaction) Applied() []AppliedStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AppliedStep, len(t.applied))
	copy(out, t.applied)
	return out
}

// Err returns the recorded outcome of a terminal transaction: nil when
// committed, the step failure when rolled back, the rollback failure when
// failed.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Apply runs every remaining plan step. On a step failure (including
// context cancellation, which is treated as a forced failure of the current
// step) it rolls back everything already applied and returns a STEP_FAILED
// error; if an undo fails too, it returns ROLLBACK_FAILED instead. Calling
// Apply on a terminal transaction is a no-op returning the recorded outcome.
func (t *Transaction) Apply(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return t.outcome
	}
	if t.state == StatePending {
		t.setState(ctx, StateApplying, "")
	}

	for t.cursor < len(t.plan.Steps) {
		if err := t.applyNextLocked(ctx); err != nil {
			return err
		}
	}

	t.setState(ctx, StateCommitted, "")
	t.outcome = nil
	return nil
}

// Step applies the next plan step only, with the same failure semantics as
// Apply. Applying the final step commits the transaction. Calling Step on a
// terminal transaction is a no-op returning the recorded outcome.
func (t *Transaction) Step(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return t.outcome
	}
	if t.state == StatePending {
		t.setState(ctx, StateApplying, "")
	}

	if t.cursor < len(t.plan.Steps) {
		if err := t.applyNextLocked(ctx); err != nil {
			return err
		}
	}
	if t.cursor == len(t.plan.Steps) {
		t.setState(ctx, StateCommitted, "")
		t.outcome = nil
	}
	return nil
}

// applyNextLocked applies the step at the cursor. On failure it rolls back
// everything already applied and records the outcome. The caller holds the
// lock and has ensured the cursor is in range.
func (t *Transaction) applyNextLocked(ctx context.Context) error {
	step := t.plan.Steps[t.cursor]

	stepErr := ctx.Err()
	if stepErr == nil {
		var tok backend.UndoToken
		tok, stepErr = t.backends.Apply(ctx, step.Op)
		if stepErr == nil {
			t.applied = append(t.applied, AppliedStep{Step: step, Undo: tok})
			t.cursor++
			t.record(ctx, "applied", step.Op.String())
			t.logger.Debug("step applied", "tx", t.id, "op", step.Op.String())
			return nil
		}
	}

	t.logger.Error("step failed, rolling back",
		"tx", t.id, "op", step.Op.String(), "err", stepErr)
	failure := errors.Wrap(errors.ErrCodeStepFailed, stepErr,
		"step %d (%s) failed", step.Rank, step.Op).
		WithPackages(step.Op.ID.String())

	// Rollback must run even when the apply context is cancelled.
	rbCtx := context.WithoutCancel(ctx)
	if rbErr := t.rollbackLocked(rbCtx); rbErr != nil {
		t.outcome = rbErr
		return rbErr
	}
	t.outcome = failure
	return failure
}

// Rollback undoes every applied step in strict reverse order. A pending
// transaction rolls back trivially. Calling Rollback on a terminal
// transaction is a no-op returning the recorded outcome of that rollback.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateCommitted:
		return errors.New(errors.ErrCodeInvalidInput,
			"transaction %s is committed; roll forward with a new plan instead", t.id)
	case StateRolledBack:
		return nil
	case StateFailed:
		return t.outcome
	}

	if err := t.rollbackLocked(ctx); err != nil {
		t.outcome = err
		return err
	}
	return nil
}

// rollbackLocked undoes applied steps in reverse. The caller holds the lock.
func (t *Transaction) rollbackLocked(ctx context.Context) error {
	for i := len(t.applied) - 1; i >= 0; i-- {
		a := t.applied[i]
		if err := t.backends.Undo(ctx, a.Undo); err != nil {
			t.setState(ctx, StateFailed, a.Step.Op.String())

			var stuck []string
			for j := i; j >= 0; j-- {
				stuck = append(stuck, t.applied[j].Step.Op.ID.String())
			}
			t.logger.Error("rollback failed",
				"tx", t.id, "op", a.Step.Op.String(), "err", err,
				"still_applied", strings.Join(stuck, ", "))
			return errors.Wrap(errors.ErrCodeRollbackFailed, err,
				"undo of %s failed; %d of %d applied steps remain in effect",
				a.Step.Op, i+1, len(t.applied)).
				WithPackages(stuck...)
		}
		t.applied = t.applied[:i]
		t.record(ctx, "undone", a.Step.Op.String())
		t.logger.Debug("step undone", "tx", t.id, "op", a.Step.Op.String())
	}
	t.cursor = 0
	t.setState(ctx, StateRolledBack, "")
	return nil
}

// setState transitions the state and journals it. The caller holds the lock.
func (t *Transaction) setState(ctx context.Context, s State, detail string) {
	t.state = s
	t.record(ctx, string(s), detail)
}

// record appends a journal event. Journal failures are logged, never fatal.
func (t *Transaction) record(ctx context.Context, state, step string) {
	ev := journal.Event{
		Transaction: t.id,
		Seq:         t.seq,
		State:       state,
		Step:        step,
		Time:        time.Now().UTC(),
	}
	t.seq++
	if err := t.journal.Record(ctx, ev); err != nil {
		t.logger.Warn("journal write failed", "tx", t.id, "err", err)
	}
}
