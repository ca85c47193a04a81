package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
)

func newGraphCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect or export the dependency graph",
	}
	cmd.AddCommand(newGraphShowCmd(configPath))
	cmd.AddCommand(newGraphExportCmd(configPath))
	return cmd
}

func newGraphShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Summarize the indexed graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleTitle.Render("Graph"))
			fmt.Fprintf(out, "  packages: %d\n", env.graph.Len())
			fmt.Fprintf(out, "  symbols:  %d\n", len(env.graph.Symbols()))
			if len(env.degraded) > 0 {
				fmt.Fprintf(out, "  degraded: %s\n", strings.Join(env.degraded, ", "))
			}

			if unsat := env.graph.Unsatisfied(); len(unsat) > 0 {
				fmt.Fprintln(out, styleTitle.Render("Unsatisfied dependencies"))
				for _, u := range unsat {
					fmt.Fprintf(out, "  %s %s\n", u.Pkg,
						styleDim.Render(fmt.Sprintf("misses %s (%s)", u.Dep.Target, u.Dep.Constraint)))
				}
			}
			return nil
		},
	}
}

func newGraphExportCmd(configPath *string) *cobra.Command {
	var out string
	var versions, conflicts bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as DOT or SVG",
		Long: `Export writes the dependency graph in Graphviz DOT form, or renders it to
SVG when the output file ends in .svg. Virtual capabilities appear as dashed
ellipses; conflict edges are included with --conflicts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			dot := graph.ToDOT(env.graph, graph.DotOptions{
				Versions:  versions,
				Conflicts: conflicts,
			})

			switch filepath.Ext(out) {
			case ".dot", ".gv":
				return os.WriteFile(out, []byte(dot), 0o644)
			case ".svg":
				svg, err := graph.RenderSVG(ctx, dot)
				if err != nil {
					return err
				}
				return os.WriteFile(out, svg, 0o644)
			case "":
				_, err := fmt.Fprint(cmd.OutOrStdout(), dot)
				return err
			}
			return errors.New(errors.ErrCodeInvalidInput,
				"unsupported output format %q (use .dot, .gv or .svg)", filepath.Ext(out))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (.dot, .gv or .svg; default: DOT to stdout)")
	cmd.Flags().BoolVar(&versions, "versions", false, "include package versions in node labels")
	cmd.Flags().BoolVar(&conflicts, "conflicts", false, "include conflict edges")
	return cmd
}
