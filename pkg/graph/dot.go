package graph

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/fsmtools/fsm/pkg/pkg"
)

// DotOptions configures DOT export.
type DotOptions struct {
	// Versions includes package versions in node labels.
	Versions bool
	// Conflicts includes conflict edges (dashed red).
	Conflicts bool
}

// ToDOT converts the graph to Graphviz DOT format. Concrete packages are
// boxes; virtual capabilities are ellipses with dashed provide edges from
// their providers. Depends edges are solid, conflict edges dashed.
//
// The output can be rendered with any Graphviz tool or with [RenderSVG].
func ToDOT(g *Graph, opts DotOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph packages {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n\n")

	for _, p := range g.Packages() {
		label := p.ID.String()
		if opts.Versions && !p.Version.IsZero() {
			label = fmt.Sprintf("%s\n%s", p.ID, p.Version)
		}
		fmt.Fprintf(&buf, "  %q [label=%q];\n", p.ID.String(), label)
	}

	buf.WriteString("\n")
	for _, sym := range g.Symbols() {
		if !g.IsVirtual(sym) {
			continue
		}
		fmt.Fprintf(&buf, "  %q [shape=ellipse, style=dashed, label=%q];\n", "virtual:"+sym, sym)
		for _, id := range g.ResolveSymbol(sym, pkg.Constraint{}) {
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed, arrowhead=empty];\n", id.String(), "virtual:"+sym)
		}
	}

	buf.WriteString("\n")
	for _, p := range g.Packages() {
		for _, d := range p.Depends {
			target := d.Target
			if g.IsVirtual(target) {
				fmt.Fprintf(&buf, "  %q -> %q;\n", p.ID.String(), "virtual:"+target)
				continue
			}
			for _, dep := range g.ResolveSymbol(d.Target, d.Constraint) {
				fmt.Fprintf(&buf, "  %q -> %q;\n", p.ID.String(), dep.String())
			}
		}
		if opts.Conflicts {
			for _, sym := range p.Conflicts {
				for _, other := range g.ResolveSymbol(sym, pkg.Constraint{}) {
					fmt.Fprintf(&buf, "  %q -> %q [style=dashed, color=red, arrowhead=none];\n", p.ID.String(), other.String())
				}
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render SVG: %w", err)
	}
	return buf.Bytes(), nil
}
