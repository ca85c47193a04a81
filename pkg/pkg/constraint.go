package pkg

import (
	"fmt"
	"strings"
)

// Op is a version comparison operator used in dependency constraints.
type Op string

// Supported constraint operators.
const (
	OpAny Op = ""   // no constraint: any version satisfies
	OpEQ  Op = "="  // exactly this version
	OpNE  Op = "!=" // any version but this one
	OpGT  Op = ">"
	OpGE  Op = ">="
	OpLT  Op = "<"
	OpLE  Op = "<="
)

// Constraint restricts the versions that satisfy a dependency.
// The zero value matches every version.
type Constraint struct {
	Op      Op      `json:"op,omitempty"`
	Version Version `json:"version,omitempty"`
}

// Any reports whether the constraint matches every version.
func (c Constraint) Any() bool { return c.Op == OpAny }

// IsZero reports whether the constraint is the zero value. Used by
// encoding/json's omitzero.
func (c Constraint) IsZero() bool { return c == Constraint{} }

// Matches reports whether the version satisfies the constraint.
func (c Constraint) Matches(v Version) bool {
	if c.Any() {
		return true
	}
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	}
	return false
}

func (c Constraint) String() string {
	if c.Any() {
		return "*"
	}
	return fmt.Sprintf("%s %s", c.Op, c.Version)
}

// ParseDependency parses a manifest dependency string of the form
// "name", "name (>= 1.2)" or "name (= 2:3.1-4)".
func ParseDependency(s string) (Dependency, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dependency{}, fmt.Errorf("empty dependency")
	}

	name, rest, found := strings.Cut(s, "(")
	name = strings.TrimSpace(name)
	if !found {
		return Dependency{Target: name}, nil
	}

	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
	op, version, err := splitConstraint(rest)
	if err != nil {
		return Dependency{}, fmt.Errorf("dependency %q: %w", s, err)
	}
	return Dependency{
		Target:     name,
		Constraint: Constraint{Op: op, Version: Version(version)},
	}, nil
}

func splitConstraint(s string) (Op, string, error) {
	for _, op := range []Op{OpGE, OpLE, OpNE, OpEQ, OpGT, OpLT} {
		if rest, ok := strings.CutPrefix(s, string(op)); ok {
			version := strings.TrimSpace(rest)
			if version == "" {
				return OpAny, "", fmt.Errorf("operator %q without version", op)
			}
			return op, version, nil
		}
	}
	return OpAny, "", fmt.Errorf("unrecognized constraint %q", s)
}
