package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
name: core
format: rpm
packages:
  - name: emacs
    version: 30.1-2
    depends:
      - emacs-core (>= 30.0)
    provides:
      - editor
  - name: emacs-core
    version: 30.1-2
`

// writeFixture lays out a repository manifest and a config pointing at it,
// with state kept in the test's temp dir.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	manifest := filepath.Join(dir, "repo.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(testManifest), 0o644))

	cfg := filepath.Join(dir, "fsm.toml")
	content := `
[[repository]]
manifest = "` + manifest + `"
priority = 10

[state]
path = "` + filepath.Join(dir, "state.db") + `"
`
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o644))
	return cfg
}

func TestInstallDryRun(t *testing.T) {
	cfgPath := writeFixture(t)

	var out bytes.Buffer
	cmd := newInstallCmd(&cfgPath)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"rpm:emacs@core", "--dry-run"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	text := out.String()
	assert.Contains(t, text, "rpm:emacs-core@core")
	assert.Contains(t, text, "rpm:emacs@core")
	// The dependency precedes the requested package.
	assert.Less(t,
		bytes.Index(out.Bytes(), []byte("rpm:emacs-core@core")),
		bytes.Index(out.Bytes(), []byte("rpm:emacs@core")))
}

func TestInstallSimulate(t *testing.T) {
	cfgPath := writeFixture(t)

	cmd := newInstallCmd(&cfgPath)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"rpm:emacs@core", "--simulate"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestInstallUnknownPackage(t *testing.T) {
	cfgPath := writeFixture(t)

	cmd := newInstallCmd(&cfgPath)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"rpm:ghost@core"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitResolution, ExitCode(err))
}

func TestPlanThenApplySimulate(t *testing.T) {
	cfgPath := writeFixture(t)
	planPath := filepath.Join(t.TempDir(), "plan.json")

	plan := newPlanCmd(&cfgPath)
	plan.SetOut(&bytes.Buffer{})
	plan.SetArgs([]string{"--install", "rpm:emacs@core", "-o", planPath})
	require.NoError(t, plan.ExecuteContext(context.Background()))
	require.FileExists(t, planPath)

	apply := newApplyCmd(&cfgPath)
	apply.SetOut(&bytes.Buffer{})
	apply.SetArgs([]string{planPath, "--simulate"})
	require.NoError(t, apply.ExecuteContext(context.Background()))
}

func TestPlanShowAndDiff(t *testing.T) {
	cfgPath := writeFixture(t)
	dir := t.TempDir()
	planA := filepath.Join(dir, "a.json")
	planB := filepath.Join(dir, "b.json")

	for _, args := range [][]string{
		{"--install", "rpm:emacs@core", "-o", planA},
		{"--install", "rpm:emacs-core@core", "-o", planB},
	} {
		plan := newPlanCmd(&cfgPath)
		plan.SetOut(&bytes.Buffer{})
		plan.SetArgs(args)
		require.NoError(t, plan.ExecuteContext(context.Background()))
	}

	var out bytes.Buffer
	show := newPlanShowCmd()
	show.SetOut(&out)
	show.SetArgs([]string{planA})
	require.NoError(t, show.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "rpm:emacs@core")

	out.Reset()
	diff := newPlanDiffCmd()
	diff.SetOut(&out)
	diff.SetArgs([]string{planA, planA})
	require.NoError(t, diff.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "identical")

	out.Reset()
	diff = newPlanDiffCmd()
	diff.SetOut(&out)
	diff.SetArgs([]string{planA, planB})
	require.NoError(t, diff.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "differ")
	assert.Contains(t, out.String(), "- install rpm:emacs@core")
}

func TestReposList(t *testing.T) {
	cfgPath := writeFixture(t)

	var out bytes.Buffer
	cmd := newReposListCmd(&cfgPath)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "core")
	assert.Contains(t, out.String(), "2 packages")
}

func TestRemoveNotInstalled(t *testing.T) {
	cfgPath := writeFixture(t)

	cmd := newRemoveCmd(&cfgPath)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"rpm:emacs@core"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestGraphExportDOT(t *testing.T) {
	cfgPath := writeFixture(t)

	var out bytes.Buffer
	cmd := newGraphExportCmd(&cfgPath)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "digraph packages")
	assert.Contains(t, out.String(), "rpm:emacs@core")
}

func TestApplyWithoutBackends(t *testing.T) {
	// A real (non-simulated) apply needs a [backend.<format>] section.
	cfgPath := writeFixture(t)

	cmd := newInstallCmd(&cfgPath)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"rpm:emacs@core"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
}
