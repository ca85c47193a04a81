package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unsatisfiable", errors.New(errors.ErrCodeUnsatisfiable, "x"), ExitResolution},
		{"conflict", errors.New(errors.ErrCodeConflict, "x"), ExitResolution},
		{"dependents", errors.New(errors.ErrCodeDependentsExist, "x"), ExitResolution},
		{"cycle", errors.New(errors.ErrCodeCycle, "x"), ExitResolution},
		{"rolled back", errors.New(errors.ErrCodeStepFailed, "x"), ExitRolledBack},
		{"rollback failed", errors.New(errors.ErrCodeRollbackFailed, "x"), ExitRollbackFailed},
		{"plain", assert.AnError, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestParseInstallArgs(t *testing.T) {
	ops, err := parseInstallArgs([]string{"rpm:emacs@core", "rpm:git@extras=2.47"})
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, pkg.OpInstall, ops[0].Kind)
	assert.Equal(t, "rpm:emacs@core", ops[0].ID.String())
	assert.Empty(t, ops[0].Version)
	assert.Equal(t, pkg.Version("2.47"), ops[1].Version)

	_, err = parseInstallArgs([]string{"not-an-id"})
	assert.Error(t, err)
}

func TestLoadConfig_DefaultWhenMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Repositories)
	assert.Equal(t, "none", cfg.Cache.Type)
}
