package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/resolver"
	"github.com/fsmtools/fsm/pkg/transaction"
)

// applyFlags are shared by every command that may run a transaction.
type applyFlags struct {
	dryRun   bool
	simulate bool
	planOut  string
}

func (f *applyFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "resolve and print the plan without applying it")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "apply against in-memory backends instead of the system")
	cmd.Flags().StringVarP(&f.planOut, "out", "o", "", "write the resolved plan to a JSON file")
}

func newInstallCmd(configPath *string) *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "install <id>[=version]...",
		Short: "Install packages and their dependencies",
		Long: `Install resolves the named packages plus everything they depend on into an
ordered plan and applies it as one transaction. Ids are canonical:
format:name@repo, e.g. rpm:emacs@core. Append =version to pin a version.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := parseInstallArgs(args)
			if err != nil {
				return err
			}
			return runOps(cmd, *configPath, ops, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRemoveCmd(configPath *string) *cobra.Command {
	var flags applyFlags
	var cascade bool
	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove installed packages",
		Long: `Remove takes packages out of the installed set. Removal fails if other
installed packages still depend on the target; --cascade removes those
dependents too, dependents first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []pkg.Operation
			for _, arg := range args {
				id, err := pkg.ParseID(arg)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidInput, err, "argument %q", arg)
				}
				op := pkg.Remove(id)
				op.Cascade = cascade
				ops = append(ops, op)
			}
			return runOps(cmd, *configPath, ops, flags)
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also remove installed dependents, dependents first")
	flags.register(cmd)
	return cmd
}

func newUpgradeCmd(configPath *string) *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "upgrade <id>...",
		Short: "Upgrade installed packages to their repository versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []pkg.Operation
			for _, arg := range args {
				id, err := pkg.ParseID(arg)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidInput, err, "argument %q", arg)
				}
				ops = append(ops, pkg.Upgrade(id, "", ""))
			}
			return runOps(cmd, *configPath, ops, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newPlanCmd(configPath *string) *cobra.Command {
	var installs, removes, upgrades []string
	var cascade bool
	var out string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve a mixed batch of operations without applying it",
		Long: `Plan resolves installs, removals and upgrades together against one index
snapshot and prints the resulting ordered plan. Save it with -o and apply it
later with "fsm apply".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []pkg.Operation
			parsed, err := parseInstallArgs(installs)
			if err != nil {
				return err
			}
			ops = append(ops, parsed...)
			for _, arg := range removes {
				id, err := pkg.ParseID(arg)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidInput, err, "--remove %q", arg)
				}
				op := pkg.Remove(id)
				op.Cascade = cascade
				ops = append(ops, op)
			}
			for _, arg := range upgrades {
				id, err := pkg.ParseID(arg)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidInput, err, "--upgrade %q", arg)
				}
				ops = append(ops, pkg.Upgrade(id, "", ""))
			}
			if len(ops) == 0 {
				return errors.New(errors.ErrCodeInvalidInput,
					"nothing to plan; pass --install, --remove or --upgrade")
			}
			return runOps(cmd, *configPath, ops, applyFlags{dryRun: true, planOut: out})
		},
	}
	cmd.Flags().StringArrayVar(&installs, "install", nil, "package to install (repeatable)")
	cmd.Flags().StringArrayVar(&removes, "remove", nil, "package to remove (repeatable)")
	cmd.Flags().StringArrayVar(&upgrades, "upgrade", nil, "package to upgrade (repeatable)")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "removals also remove installed dependents")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the resolved plan to a JSON file")
	cmd.AddCommand(newPlanShowCmd())
	cmd.AddCommand(newPlanDiffCmd())
	return cmd
}

func newPlanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan.json>",
		Short: "Print a saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := resolver.Load(args[0])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "loading plan %s", args[0])
			}
			renderPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
}

func newPlanDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a.json> <b.json>",
		Short: "Compare two saved plans",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolver.Load(args[0])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "loading plan %s", args[0])
			}
			b, err := resolver.Load(args[1])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "loading plan %s", args[1])
			}
			da, err := a.Digest()
			if err != nil {
				return err
			}
			db, err := b.Digest()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if da == db {
				fmt.Fprintf(out, "Plans are identical (digest %s)\n", da)
				return nil
			}
			fmt.Fprintln(out, styleTitle.Render(
				fmt.Sprintf("Plans differ (digest %s vs %s)", da, db)))

			inA := make(map[string]bool, len(a.Steps))
			for _, s := range a.Steps {
				inA[s.Op.String()] = true
			}
			inB := make(map[string]bool, len(b.Steps))
			for _, s := range b.Steps {
				inB[s.Op.String()] = true
			}
			reordered := true
			for _, s := range a.Steps {
				if !inB[s.Op.String()] {
					fmt.Fprintln(out, styleRemove.Render("  - "+s.Op.String()))
					reordered = false
				}
			}
			for _, s := range b.Steps {
				if !inA[s.Op.String()] {
					fmt.Fprintln(out, styleInstall.Render("  + "+s.Op.String()))
					reordered = false
				}
			}
			if reordered {
				fmt.Fprintln(out, styleDim.Render("  same operations, different order"))
			}
			return nil
		},
	}
}

func newApplyCmd(configPath *string) *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "apply <plan.json>",
		Short: "Apply a previously saved plan",
		Long: `Apply runs a plan saved by "fsm plan -o". The plan is applied as one
transaction: if any step fails, everything already applied is rolled back in
reverse order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := resolver.Load(args[0])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "loading plan %s", args[0])
			}
			ctx := cmd.Context()
			env, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			renderPlan(cmd.OutOrStdout(), plan)
			return applyPlan(cmd, env, plan, simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "apply against in-memory backends instead of the system")
	return cmd
}

// parseInstallArgs parses "format:name@repo" or "format:name@repo=version".
func parseInstallArgs(args []string) ([]pkg.Operation, error) {
	var ops []pkg.Operation
	for _, arg := range args {
		spec, version, _ := strings.Cut(arg, "=")
		id, err := pkg.ParseID(spec)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "argument %q", arg)
		}
		ops = append(ops, pkg.Install(id, pkg.Version(version)))
	}
	return ops, nil
}

// runOps is the shared resolve-then-apply path.
func runOps(cmd *cobra.Command, configPath string, ops []pkg.Operation, flags applyFlags) error {
	ctx := cmd.Context()
	env, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	req, err := env.request(ctx, ops)
	if err != nil {
		return err
	}
	plan, err := resolver.Resolve(env.graph, req)
	if err != nil {
		return err
	}

	renderPlan(cmd.OutOrStdout(), plan)
	if flags.planOut != "" {
		if err := plan.Save(flags.planOut); err != nil {
			return err
		}
		loggerFromContext(ctx).Info("Plan written", "path", flags.planOut)
	}
	if flags.dryRun || plan.Empty() {
		return nil
	}
	return applyPlan(cmd, env, plan, flags.simulate)
}

// applyPlan runs the plan as one transaction and, on commit, persists the
// new installed set. Simulated runs leave the state store untouched.
func applyPlan(cmd *cobra.Command, env *env, plan *resolver.Plan, simulate bool) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	reg, err := env.backends(ctx, simulate)
	if err != nil {
		return err
	}
	jrnl, err := env.recorder(ctx)
	if err != nil {
		return err
	}
	defer jrnl.Close(ctx)

	prog := newProgress(logger)
	eng := transaction.NewEngine(reg, transaction.Options{Journal: jrnl, Logger: logger})
	tx, err := eng.Run(ctx, plan)
	if err != nil {
		logger.Error("Transaction did not commit", "tx", tx.ID(), "state", tx.State())
		return err
	}

	if !simulate {
		committed := make([]pkg.Operation, len(plan.Steps))
		for i, s := range plan.Steps {
			committed[i] = s.Op
		}
		if err := env.store.Commit(ctx, committed); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err,
				"transaction %s committed but recording state failed", tx.ID())
		}
	}
	prog.done("Transaction " + tx.ID() + " committed")
	return nil
}
