package resolver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/fsmtools/fsm/pkg/pkg"
)

// ReasonKind states why an operation is in a plan.
type ReasonKind string

const (
	// ReasonRequested marks operations the caller asked for directly.
	ReasonRequested ReasonKind = "requested"
	// ReasonDependency marks installs pulled in to satisfy a dependency.
	ReasonDependency ReasonKind = "dependency"
	// ReasonCascade marks removals pulled in by a cascading removal.
	ReasonCascade ReasonKind = "cascade"
)

// Reason annotates a plan step with its provenance. Of names the canonical
// id of the package that pulled this operation in; it is empty for direct
// requests.
type Reason struct {
	Kind ReasonKind `json:"kind"`
	Of   string     `json:"of,omitempty"`
}

func (r Reason) String() string {
	if r.Of == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s of %s", r.Kind, r.Of)
}

// Step is one operation in a plan, annotated with its dependency rank
// (position in the topological order) and the reason it is present.
type Step struct {
	Op     pkg.Operation `json:"op"`
	Rank   int           `json:"rank"`
	Reason Reason        `json:"reason"`
}

// Plan is an ordered, conflict-free operation sequence. It is immutable
// once produced by [Resolve] and consumed exactly once by the transaction
// engine.
//
// The invariants [Resolve] guarantees:
//   - for every install/upgrade at rank r, everything it depends on is
//     already installed or appears at a rank < r;
//   - for every removal at rank r, no surviving package at any rank
//     depends on it.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Empty reports whether the plan has no operations.
func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

// Digest returns a stable fingerprint of the plan. Identical graph and
// request always produce an identical digest, so plans can be diffed and
// pinned before being applied.
func (p *Plan) Digest() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// Encode writes the plan as indented JSON: the stable, inspectable form
// used for dry runs and for handing a reviewed plan to apply.
func (p *Plan) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// Decode reads a plan previously written by [Plan.Encode].
func Decode(r io.Reader) (*Plan, error) {
	var p Plan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	for i, s := range p.Steps {
		if s.Rank != i {
			return nil, fmt.Errorf("decoding plan: step %d has rank %d", i, s.Rank)
		}
	}
	return &p, nil
}

// Load reads a plan from a file.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Save writes the plan to a file.
func (p *Plan) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
