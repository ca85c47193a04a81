package pkgrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmtools/fsm/pkg/cache"
	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

const emacsManifest = `
name: core
format: rpm
packages:
  - name: emacs
    version: 30.1-2
    summary: GNU Emacs editor
    depends:
      - emacs-lisp
      - emacs-core (>= 30.0)
      - emacs-gtk
    provides:
      - editor
  - name: emacs-lisp
    version: 30.1-2
    depends:
      - emacs-core
  - name: emacs-core
    version: 30.1-2
  - name: emacs-gtk
    version: 30.1-2
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManifestSource(t *testing.T) {
	src, err := NewManifestSource(writeManifest(t, emacsManifest), 1)
	require.NoError(t, err)

	assert.Equal(t, "core", src.Name())
	assert.Equal(t, "rpm", src.Format())
	assert.Equal(t, 1, src.Priority())

	records, err := src.ListPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	p, err := records[0].ToPackage(src.Format(), src.Name())
	require.NoError(t, err)
	assert.Equal(t, "rpm:emacs@core", p.ID.String())
	assert.Equal(t, pkg.Version("30.1-2"), p.Version)
	require.Len(t, p.Depends, 3)
	assert.Equal(t, pkg.OpGE, p.Depends[1].Constraint.Op)
	assert.Equal(t, []string{"editor"}, p.Provides)
}

func TestManifestSource_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name":   "format: rpm\npackages: []\n",
		"missing format": "name: core\npackages: []\n",
		"bad yaml":       "name: [unclosed\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewManifestSource(writeManifest(t, content), 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidManifest), "got %v", err)
		})
	}

	_, err := NewManifestSource(filepath.Join(t.TempDir(), "absent.yaml"), 0)
	assert.Error(t, err)
}

func TestManifestSource_RecordWithBadDependency(t *testing.T) {
	src, err := NewManifestSource(writeManifest(t, `
name: core
format: rpm
packages:
  - name: broken
    version: "1.0"
    depends:
      - "x (~> 1.0)"
`), 0)
	require.NoError(t, err)

	records, err := src.ListPackages(context.Background())
	require.NoError(t, err)
	_, err = records[0].ToPackage(src.Format(), src.Name())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidManifest), "got %v", err)
}

func TestManifestSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: core\nformat: rpm\npackages:\n  - name: tool\n    version: \"1.0\"\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts", "tool-1.0.rpm"), []byte("payload"), 0o644))

	src, err := NewManifestSource(path, 0)
	require.NoError(t, err)

	rc, err := src.Fetch(context.Background(), pkg.ID{Format: "rpm", Name: "tool", Repo: "core"})
	require.NoError(t, err)
	defer rc.Close()

	_, err = src.Fetch(context.Background(), pkg.ID{Format: "rpm", Name: "ghost", Repo: "core"})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestCachedSource(t *testing.T) {
	inner := &fakeSource{name: "core", format: "rpm", records: []Record{{Name: "tool", Version: "1.0"}}}
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	src := NewCachedSource(inner, fc, time.Minute)
	ctx := context.Background()

	first, err := src.ListPackages(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The second listing is served from cache even if the source changes.
	inner.records = nil
	second, err := src.ListPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, "core", src.Name())
	assert.Equal(t, "rpm", src.Format())
}
