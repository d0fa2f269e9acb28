package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/plan"
)

func newPlanCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate the topology and show the creation order",
		Long: `Plan validates the configured topology and prints the order resources are
created in. Nothing is created.

Checks performed:
  - every reference names a declared resource of the right kind
  - the bucket policy grants the distribution's identity read-only access
  - the distribution enforces HTTPS and accepts only GET and HEAD
  - the dependency graph has no cycles

Examples:
    wetwire-site plan
    wetwire-site plan -c prod.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(a, cmd.OutOrStdout(), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runPlan(a *app, w io.Writer, format string) error {
	cfg, descs, err := a.load()
	if err != nil {
		return outputPlanResult(w, wetwire.PlanResult{Errors: []string{err.Error()}}, nil, format)
	}

	p, err := plan.Build(descs)
	result := wetwire.PlanResult{Success: err == nil, Stack: cfg.Stack}
	if err != nil {
		result.Errors = []string{err.Error()}
		return outputPlanResult(w, result, nil, format)
	}
	result.Order = p.Names()
	for _, e := range p.Edges() {
		result.Edges = append(result.Edges, wetwire.PlanEdge{From: e.From, To: e.To})
	}
	return outputPlanResult(w, result, p, format)
}

func outputPlanResult(w io.Writer, result wetwire.PlanResult, p *plan.Plan, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if !result.Success {
			fmt.Fprintln(w, "Plan FAILED:")
			for _, e := range result.Errors {
				fmt.Fprintf(w, "  ERROR: %s\n", e)
			}
			break
		}
		fmt.Fprintf(w, "Plan for stack %s: %d resources\n", result.Stack, len(result.Order))
		for i, name := range result.Order {
			d, _ := p.Lookup(name)
			fmt.Fprintf(w, "  %d. %s (%s)", i+1, name, d.Kind().CFType())
			if deps := p.Dependencies(name); len(deps) > 0 {
				fmt.Fprintf(w, " after %v", deps)
			}
			fmt.Fprintln(w)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return fmt.Errorf("plan failed")
	}
	return nil
}
