package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newReposCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Inspect configured repositories",
	}
	cmd.AddCommand(newReposListCmd(configPath))
	return cmd
}

func newReposListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List repositories in the current index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			counts := make(map[string]int)
			formats := make(map[string]string)
			for _, p := range env.graph.Packages() {
				counts[p.ID.Repo]++
				formats[p.ID.Repo] = p.ID.Format
			}

			names := make([]string, 0, len(env.priority))
			for name := range env.priority {
				names = append(names, name)
			}
			slices.Sort(names)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleTitle.Render(pluralize(len(names), "repository", "repositories")))

			nameWidth := 0
			for _, name := range names {
				nameWidth = max(nameWidth, len(name))
			}
			for _, name := range names {
				format := formats[name]
				if format == "" {
					format = "-"
				}
				fmt.Fprintf(out, "  %-*s  %-5s  %s  %s",
					nameWidth, name, format,
					pluralize(counts[name], "package", "packages"),
					styleDim.Render(fmt.Sprintf("priority %d", env.priority[name])))
				if slices.Contains(env.degraded, name) {
					fmt.Fprintf(out, "  %s", styleRemove.Render("degraded"))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
