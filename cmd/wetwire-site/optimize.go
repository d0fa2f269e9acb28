package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/optimizer"
	"github.com/lex00/wetwire-site-go/internal/plan"
)

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		category     string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Suggest improvements to the configured stack",
		Long: `Optimize plans the configured topology and suggests security,
performance and reliability improvements.

Examples:
    wetwire-site optimize
    wetwire-site optimize --category reliability --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(a, cmd.OutOrStdout(), category, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&category, "category", "all", "Category: all, security, performance or reliability")

	return cmd
}

func runOptimize(a *app, w io.Writer, category, format string) error {
	switch category {
	case "all", optimizer.CategorySecurity, optimizer.CategoryPerformance, optimizer.CategoryReliability:
	default:
		return fmt.Errorf("unknown category: %s", category)
	}

	_, descs, err := a.load()
	if err != nil {
		return err
	}
	p, err := plan.Build(descs)
	if err != nil {
		return err
	}
	return outputOptimizeResult(w, optimizer.Optimize(p, optimizer.Options{Category: category}), format)
}

func outputOptimizeResult(w io.Writer, result wetwire.OptimizeResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Summary.Total == 0 {
			fmt.Fprintln(w, "No suggestions")
			return nil
		}
		for _, s := range result.Suggestions {
			fmt.Fprintf(w, "[%s] %s %s: %s\n", s.Severity, s.Rule, s.Resource, s.Title)
			fmt.Fprintf(w, "    %s\n", s.Description)
			fmt.Fprintf(w, "    Fix: %s\n", s.Suggestion)
		}
		fmt.Fprintf(w, "%d suggestions (%d security, %d performance, %d reliability)\n",
			result.Summary.Total, result.Summary.Security, result.Summary.Performance, result.Summary.Reliability)

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
