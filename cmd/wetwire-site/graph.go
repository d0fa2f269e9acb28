package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-site-go/internal/graph"
	"github.com/lex00/wetwire-site-go/internal/plan"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		cluster      bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate DOT graph of resource dependencies",
		Long: `Generate a DOT or Mermaid format graph showing resource dependencies.
Dependencies inferred by planning (a distribution waiting for the bucket
policy that grants its identity) are drawn dashed.

The output can be rendered with Graphviz:
    wetwire-site graph | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    wetwire-site graph -f mermaid`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(a, cmd.OutOrStdout(), outputFormat, cluster)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVar(&cluster, "cluster", false, "Cluster resources by AWS service")

	return cmd
}

func runGraph(a *app, w io.Writer, format string, cluster bool) error {
	_, descs, err := a.load()
	if err != nil {
		return err
	}
	p, err := plan.Build(descs)
	if err != nil {
		return err
	}

	var graphFormat graph.Format
	switch format {
	case "dot":
		graphFormat = graph.FormatDOT
	case "mermaid":
		graphFormat = graph.FormatMermaid
	default:
		return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", format)
	}

	gen := &graph.Generator{Format: graphFormat, ClusterByService: cluster}
	return gen.Generate(p, w)
}
