package backend

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// ExecConfig describes how to drive a format's native package tool. Each
// field is an argv template; placeholders are expanded per operation:
//
//	{name}     package name
//	{version}  target version ({from} for the previous one)
//	{repo}     source repository
//	{id}       full canonical id
//
// A typical rpm configuration:
//
//	Install: ["dnf", "install", "-y", "{name}-{version}"]
//	Remove:  ["dnf", "remove", "-y", "{name}"]
//	Upgrade: ["dnf", "install", "-y", "{name}-{version}"]
type ExecConfig struct {
	Format  string   `toml:"format"`
	Install []string `toml:"install"`
	Remove  []string `toml:"remove"`
	Upgrade []string `toml:"upgrade"`
}

// Exec shells out to a format's native package tool. Undo runs the template
// for the inverse operation, so a failed transaction is reversed with the
// same tool that applied it.
type Exec struct {
	cfg ExecConfig

	// run is swapped out in tests.
	run func(ctx context.Context, argv []string) error
}

// NewExec creates an exec applier from a template configuration.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if cfg.Format == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "exec backend needs a format")
	}
	if len(cfg.Install) == 0 || len(cfg.Remove) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"exec backend for %q needs install and remove templates", cfg.Format)
	}
	if len(cfg.Upgrade) == 0 {
		cfg.Upgrade = cfg.Install
	}
	return &Exec{cfg: cfg, run: runCommand}, nil
}

func (e *Exec) Format() string { return e.cfg.Format }

func (e *Exec) Apply(ctx context.Context, op pkg.Operation) (UndoToken, error) {
	if err := e.perform(ctx, op); err != nil {
		return UndoToken{}, err
	}
	return UndoToken{Format: e.cfg.Format, Op: Inverse(op)}, nil
}

func (e *Exec) Undo(ctx context.Context, tok UndoToken) error {
	return e.perform(ctx, tok.Op)
}

func (e *Exec) perform(ctx context.Context, op pkg.Operation) error {
	var tmpl []string
	switch op.Kind {
	case pkg.OpInstall:
		tmpl = e.cfg.Install
	case pkg.OpRemove:
		tmpl = e.cfg.Remove
	case pkg.OpUpgrade:
		tmpl = e.cfg.Upgrade
	default:
		return errors.New(errors.ErrCodeUnsupported, "unknown operation kind %q", op.Kind)
	}

	argv := expand(tmpl, op)
	if err := e.run(ctx, argv); err != nil {
		return errors.Wrap(errors.ErrCodeStepFailed, err,
			"%s via %q", op, strings.Join(argv, " ")).
			WithPackages(op.ID.String())
	}
	return nil
}

// expand substitutes operation fields into an argv template.
func expand(tmpl []string, op pkg.Operation) []string {
	repl := strings.NewReplacer(
		"{name}", op.ID.Name,
		"{version}", string(op.Version),
		"{from}", string(op.From),
		"{repo}", op.ID.Repo,
		"{id}", op.ID.String(),
	)
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = repl.Replace(a)
	}
	return out
}

func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Wrap(errors.ErrCodeInternal, err, "%s", msg)
		}
		return err
	}
	return nil
}

var _ Applier = (*Exec)(nil)
