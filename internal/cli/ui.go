package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/resolver"
)

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - installs
	colorYellow = lipgloss.Color("220") // Amber - upgrades
	colorRed    = lipgloss.Color("167") // Soft red - removals
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleInstall = lipgloss.NewStyle().Foreground(colorGreen)
	styleUpgrade = lipgloss.NewStyle().Foreground(colorYellow)
	styleRemove  = lipgloss.NewStyle().Foreground(colorRed)
)

func kindStyle(k pkg.OpKind) lipgloss.Style {
	switch k {
	case pkg.OpRemove:
		return styleRemove
	case pkg.OpUpgrade:
		return styleUpgrade
	}
	return styleInstall
}

// renderPlan writes a human-readable plan table:
//
//	Plan (3 steps, digest 9f2a...)
//	  1  install  rpm:emacs-core@core  30.1-2   dependency of rpm:emacs@core
//	  2  install  rpm:emacs-gtk@core   30.1-2   dependency of rpm:emacs@core
//	  3  install  rpm:emacs@core       30.1-2   requested
func renderPlan(w io.Writer, plan *resolver.Plan) {
	if plan.Empty() {
		fmt.Fprintln(w, styleDim.Render("Nothing to do."))
		return
	}

	digest, err := plan.Digest()
	if err != nil {
		digest = "?"
	}
	fmt.Fprintln(w, styleTitle.Render(
		fmt.Sprintf("Plan (%s, digest %s)", pluralize(len(plan.Steps), "step", "steps"), digest)))

	idWidth, verWidth := 0, 0
	for _, s := range plan.Steps {
		idWidth = max(idWidth, len(s.Op.ID.String()))
		verWidth = max(verWidth, len(versionCell(s.Op)))
	}

	for _, s := range plan.Steps {
		fmt.Fprintf(w, "  %2d  %s  %-*s  %-*s  %s\n",
			s.Rank+1,
			kindStyle(s.Op.Kind).Render(fmt.Sprintf("%-7s", s.Op.Kind)),
			idWidth, s.Op.ID.String(),
			verWidth, versionCell(s.Op),
			styleDim.Render(s.Reason.String()))
	}
}

func versionCell(op pkg.Operation) string {
	switch op.Kind {
	case pkg.OpUpgrade:
		return fmt.Sprintf("%s -> %s", op.From, op.Version)
	case pkg.OpRemove:
		return string(op.From)
	}
	return string(op.Version)
}

// joinIDs renders a list of canonical ids for messages.
func joinIDs(ids []pkg.ID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return strings.Join(out, ", ")
}
