// Package pkgrepo federates package repositories into the canonical graph.
//
// A [Source] is the narrow capability each repository backend implements:
// list raw package records, fetch artifacts. [Index] queries sources with
// bounded parallelism and merges their listings into one [graph.Graph]
// snapshot, detecting contradictory provenance instead of silently merging
// it.
package pkgrepo

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// Source is the repository capability consumed by the index. Each backend
// format (rpm, apt, pip, npm, ...) implements this; the core never encodes
// format-specific logic.
type Source interface {
	// Name returns the repository name, unique across configured sources.
	Name() string
	// Format returns the packaging format of every package in this source.
	Format() string
	// Priority returns the configured tie-break priority; higher wins.
	Priority() int
	// ListPackages returns the raw package records of this repository.
	ListPackages(ctx context.Context) ([]Record, error)
	// Fetch returns a handle on the package artifact for installation.
	Fetch(ctx context.Context, id pkg.ID) (io.ReadCloser, error)
}

// Record is a raw package record as a repository manifest describes it.
// It maps losslessly onto the canonical [pkg.Package] fields.
type Record struct {
	Name      string   `yaml:"name" json:"name"`
	Version   string   `yaml:"version" json:"version"`
	Depends   []string `yaml:"depends,omitempty" json:"depends,omitempty"`
	Conflicts []string `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Provides  []string `yaml:"provides,omitempty" json:"provides,omitempty"`
	Summary   string   `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// ToPackage converts the record into a canonical package owned by the given
// format and repository.
func (r Record) ToPackage(format, repo string) (pkg.Package, error) {
	if r.Name == "" {
		return pkg.Package{}, errors.New(errors.ErrCodeInvalidManifest,
			"package record in repository %q has no name", repo)
	}
	p := pkg.Package{
		ID:      pkg.ID{Format: format, Name: r.Name, Repo: repo},
		Version: pkg.Version(r.Version),
		Summary: r.Summary,
	}
	for _, raw := range r.Depends {
		d, err := pkg.ParseDependency(raw)
		if err != nil {
			return pkg.Package{}, errors.Wrap(errors.ErrCodeInvalidManifest, err,
				"package %q in repository %q", r.Name, repo).
				WithPackages(p.ID.String())
		}
		p.Depends = append(p.Depends, d)
	}
	for _, c := range r.Conflicts {
		if c = strings.TrimSpace(c); c != "" {
			p.Conflicts = append(p.Conflicts, c)
		}
	}
	for _, v := range r.Provides {
		if v = strings.TrimSpace(v); v != "" {
			p.Provides = append(p.Provides, v)
		}
	}
	return p, nil
}

// depFingerprint canonicalizes the relation declarations of a record so two
// sources claiming the same (format, name, version) can be compared.
func (r Record) depFingerprint() string {
	var parts []string
	parts = append(parts, sortedJoin("d", r.Depends)...)
	parts = append(parts, sortedJoin("c", r.Conflicts)...)
	parts = append(parts, sortedJoin("p", r.Provides)...)
	return strings.Join(parts, ";")
}

func sortedJoin(tag string, vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, tag+":"+strings.TrimSpace(v))
	}
	// Insertion order must not matter for provenance comparison.
	slices.Sort(out)
	return out
}
