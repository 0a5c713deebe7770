package main

import (
	"fmt"
	"strings"

	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/visualization"
	"github.com/spf13/cobra"
)

func newMatricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrices [network]",
		Short: "Compile a node table and show its regulators",
		Long: `Compile the activation and inhibition matrices of a network and
print each node's regulators and regulation class.

With --stimuli the rectangular stimulus-indexed matrices are built
instead, whose columns are the named stimulus nodes. --format dot prints a
Graphviz diagram and --format graph a JSON node and edge list.

Examples:
  mendoza matrices network.csv
  mendoza matrices network.yaml --stimuli TNF,IL1 --json
  mendoza matrices network.csv --format dot | dot -Tsvg > network.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			stimuli, _ := cmd.Flags().GetStringSlice("stimuli")
			formatStr, _ := cmd.Flags().GetString("format")
			format, err := visualization.ParseFormat(formatStr)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			net, err := experiment.LoadNetwork(cfg.Network.Path, newLogger(cmd, cfg))
			if err != nil {
				return err
			}

			m := net.Matrices
			if len(stimuli) > 0 {
				m, err = network.BuildStimulusIndexed(net.Topology.Nodes, stimuli)
				if err != nil {
					return err
				}
			}

			marked := append(append([]string(nil), net.Topology.Stimuli...), stimuli...)
			switch format {
			case visualization.FormatDOT:
				_, err = fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(m, marked))
				return err
			case visualization.FormatGraph:
				return writeJSON(cmd, visualization.RenderGraph(m, marked))
			}

			sum := experiment.Summarize(net.Source, m)
			if jsonOut {
				return writeJSON(cmd, sum)
			}
			printSummary(cmd, sum)
			return nil
		},
	}

	cmd.Flags().StringSlice("stimuli", nil, "Build stimulus-indexed matrices with these columns")
	cmd.Flags().String("format", "text", "Output format: text, dot or graph")

	return cmd
}

func printSummary(cmd *cobra.Command, sum experiment.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Network: %s (%d nodes, %d columns)\n", sum.Source, len(sum.Nodes), len(sum.Columns))
	fmt.Fprintf(out, "Edges: %d activations, %d inhibitions\n\n", sum.Activations, sum.Inhibitions)

	width := nameWidth(sum.Nodes)
	for _, n := range sum.Nodes {
		fmt.Fprintf(out, "  %-*s  %-15s", width, n.Name, n.Regulation)
		if len(n.Activators) > 0 {
			fmt.Fprintf(out, "  +[%s]", strings.Join(n.Activators, ", "))
		}
		if len(n.Inhibitors) > 0 {
			fmt.Fprintf(out, "  -[%s]", strings.Join(n.Inhibitors, ", "))
		}
		fmt.Fprintln(out)
	}

	if len(sum.Unresolved) > 0 {
		fmt.Fprintf(out, "\nUnresolved regulators (%d):\n", len(sum.Unresolved))
		for _, u := range sum.Unresolved {
			fmt.Fprintf(out, "  %s: %s %q\n", u.Target, u.Relation, u.Token)
		}
	}
}

func nameWidth(nodes []experiment.NodeSummary) int {
	width := 4
	for _, n := range nodes {
		width = max(width, len(n.Name))
	}
	return width
}
