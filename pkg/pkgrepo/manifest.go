package pkgrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// manifestFile is the on-disk YAML schema of a repository manifest.
type manifestFile struct {
	Name     string   `yaml:"name"`
	Format   string   `yaml:"format"`
	Packages []Record `yaml:"packages"`
}

// ManifestSource serves packages from a local YAML repository manifest.
// It is the reference Source implementation; network-backed sources plug in
// through the same interface.
type ManifestSource struct {
	path     string
	priority int
	manifest manifestFile
}

// NewManifestSource loads and validates the manifest at path. The priority
// comes from configuration, not the manifest: ordering repositories is the
// operator's call, not the publisher's.
func NewManifestSource(path string, priority int) (*ManifestSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "reading repository manifest %s", path)
	}

	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parsing repository manifest %s", path)
	}
	if m.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "manifest %s has no repository name", path)
	}
	if m.Format == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "manifest %s (repository %q) has no format", path, m.Name)
	}

	return &ManifestSource{path: path, priority: priority, manifest: m}, nil
}

// Name returns the repository name declared by the manifest.
func (s *ManifestSource) Name() string { return s.manifest.Name }

// Format returns the packaging format declared by the manifest.
func (s *ManifestSource) Format() string { return s.manifest.Format }

// Priority returns the configured tie-break priority.
func (s *ManifestSource) Priority() int { return s.priority }

// ListPackages returns the manifest's package records.
func (s *ManifestSource) ListPackages(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.manifest.Packages, nil
}

// Fetch opens the package artifact stored next to the manifest as
// <name>-<version>.<format> under an "artifacts" directory.
func (s *ManifestSource) Fetch(ctx context.Context, id pkg.ID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range s.manifest.Packages {
		if r.Name != id.Name {
			continue
		}
		artifact := fmt.Sprintf("%s-%s.%s", r.Name, r.Version, s.manifest.Format)
		f, err := os.Open(filepath.Join(filepath.Dir(s.path), "artifacts", artifact))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err,
				"artifact for %s", id).WithPackages(id.String())
		}
		return f, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "repository %q does not carry %s", s.manifest.Name, id).
		WithPackages(id.String())
}

var _ Source = (*ManifestSource)(nil)
