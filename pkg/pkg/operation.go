package pkg

import "fmt"

// OpKind distinguishes the three operations a caller can request.
type OpKind string

const (
	OpInstall OpKind = "install"
	OpRemove  OpKind = "remove"
	OpUpgrade OpKind = "upgrade"
)

// Operation is a single requested or planned change to the installed set.
//
// For installs, Version is the version to install. For upgrades, From is the
// currently installed version and Version the target. For removals both
// version fields identify what is being removed (From) for undo purposes.
type Operation struct {
	Kind    OpKind  `json:"kind"`
	ID      ID      `json:"id"`
	Version Version `json:"version,omitempty"`
	From    Version `json:"from,omitempty"`

	// Cascade marks a removal that may transitively remove dependents
	// instead of failing when dependents exist.
	Cascade bool `json:"cascade,omitempty"`
}

// Install builds an install operation.
func Install(id ID, v Version) Operation {
	return Operation{Kind: OpInstall, ID: id, Version: v}
}

// Remove builds a removal operation.
func Remove(id ID) Operation {
	return Operation{Kind: OpRemove, ID: id}
}

// CascadeRemove builds a removal that transitively removes dependents.
func CascadeRemove(id ID) Operation {
	op := Remove(id)
	op.Cascade = true
	return op
}

// Upgrade builds an upgrade operation from one version to another.
func Upgrade(id ID, from, to Version) Operation {
	return Operation{Kind: OpUpgrade, ID: id, Version: to, From: from}
}

// String renders a stable human-readable form, e.g.
// "install rpm:emacs@core 30.1-2" or "upgrade rpm:emacs@core 29.4->30.1-2".
func (o Operation) String() string {
	switch o.Kind {
	case OpUpgrade:
		return fmt.Sprintf("%s %s %s->%s", o.Kind, o.ID, o.From, o.Version)
	case OpRemove:
		return fmt.Sprintf("%s %s", o.Kind, o.ID)
	default:
		return fmt.Sprintf("%s %s %s", o.Kind, o.ID, o.Version)
	}
}
