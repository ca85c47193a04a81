// Package pkg defines the canonical package model that fsm federates all
// repository formats into. Every backend format (rpm, apt, pip, npm, ...)
// is normalized into an immutable [Package] value keyed by a canonical [ID].
//
// Packages are created when a repository is indexed and are never mutated;
// re-indexing supersedes them wholesale.
package pkg

import (
	"fmt"
	"strings"
)

// ID uniquely identifies a package entry: the same name in two repositories
// (or two formats) yields two distinct IDs.
type ID struct {
	Format string `json:"format"` // packaging format, e.g. "rpm", "apt", "pip"
	Name   string `json:"name"`   // canonical package name within the format
	Repo   string `json:"repo"`   // source repository name
}

// String renders the canonical form "format:name@repo".
func (id ID) String() string {
	return fmt.Sprintf("%s:%s@%s", id.Format, id.Name, id.Repo)
}

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses the canonical "format:name@repo" form produced by [ID.String].
func ParseID(s string) (ID, error) {
	format, rest, ok := strings.Cut(s, ":")
	if !ok || format == "" {
		return ID{}, fmt.Errorf("malformed package id %q: missing format", s)
	}
	name, repo, ok := strings.Cut(rest, "@")
	if !ok || name == "" || repo == "" {
		return ID{}, fmt.Errorf("malformed package id %q: want format:name@repo", s)
	}
	return ID{Format: format, Name: name, Repo: repo}, nil
}

// Dependency is a version-constrained requirement on a symbol. The target is
// a name or a virtual capability, not a concrete ID: the dependency graph
// resolves it to the concrete packages that provide it.
type Dependency struct {
	Target     string     `json:"target"`
	Constraint Constraint `json:"constraint,omitzero"`
}

// String renders "target (op version)" or just the target when unconstrained.
func (d Dependency) String() string {
	if d.Constraint.Any() {
		return d.Target
	}
	return fmt.Sprintf("%s (%s %s)", d.Target, d.Constraint.Op, d.Constraint.Version)
}

// Package is an immutable canonical package record.
type Package struct {
	ID      ID           `json:"id"`
	Version Version      `json:"version"`
	Depends []Dependency `json:"depends,omitempty"`

	// Conflicts lists symbols this package cannot coexist with.
	Conflicts []string `json:"conflicts,omitempty"`

	// Provides lists virtual capabilities this package satisfies, in
	// addition to its own name.
	Provides []string `json:"provides,omitempty"`

	Summary string `json:"summary,omitempty"`
}

// Symbols returns every symbol this package satisfies: its own name plus
// all declared virtual capabilities.
func (p Package) Symbols() []string {
	out := make([]string, 0, len(p.Provides)+1)
	out = append(out, p.ID.Name)
	out = append(out, p.Provides...)
	return out
}

// DependsOn reports whether the package declares a dependency on the symbol.
func (p Package) DependsOn(symbol string) bool {
	for _, d := range p.Depends {
		if d.Target == symbol {
			return true
		}
	}
	return false
}
