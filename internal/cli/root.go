package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fsmtools/fsm/pkg/errors"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. Called by
// the main package with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Exit codes distinguish how far an apply got: resolution failed before
// anything ran, a failed transaction was fully rolled back, or rollback
// itself failed and the system needs operator attention.
const (
	ExitOK             = 0
	ExitError          = 1
	ExitResolution     = 2
	ExitRolledBack     = 3
	ExitRollbackFailed = 4
)

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	code := errors.GetCode(err)
	switch {
	case errors.Resolution(code):
		return ExitResolution
	case code == errors.ErrCodeStepFailed:
		return ExitRolledBack
	case code == errors.ErrCodeRollbackFailed:
		return ExitRollbackFailed
	}
	return ExitError
}

// Execute runs the fsm CLI and returns an error if any command fails.
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext. Default level is info; --verbose switches to debug.
func Execute(ctx context.Context) error {
	var verbose bool
	var configPath string

	root := &cobra.Command{
		Use:          "fsm",
		Short:        "fsm resolves and applies package operations across federated repositories",
		Long:         `fsm indexes federated package repositories into one dependency graph, resolves install, remove and upgrade requests into ordered plans, and applies them transactionally with automatic rollback.`,
		Version:      version,
		SilenceUsage: true,
		// Errors are printed once in main with their exit code; cobra
		// printing them again would duplicate every failure.
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("fsm %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to fsm.toml (default: ./fsm.toml if present)")

	root.AddCommand(newInstallCmd(&configPath))
	root.AddCommand(newRemoveCmd(&configPath))
	root.AddCommand(newUpgradeCmd(&configPath))
	root.AddCommand(newPlanCmd(&configPath))
	root.AddCommand(newApplyCmd(&configPath))
	root.AddCommand(newGraphCmd(&configPath))
	root.AddCommand(newReposCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))

	return root.ExecuteContext(ctx)
}
