package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/differ"
)

func newDiffCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "diff <deployed-template>",
		Short: "Compare a deployed template with the current configuration",
		Long: `Diff synthesises the configured stack and compares it with a previously
deployed template (JSON or YAML), listing resources that would be added,
removed or modified. Modifications that force CloudFormation to replace the
resource, such as renaming the bucket, are flagged.

Examples:
    wetwire-site diff deployed.yaml
    wetwire-site diff deployed.json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(a, cmd.OutOrStdout(), args[0], outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runDiff(a *app, w io.Writer, deployedPath, format string) error {
	deployed, err := differ.LoadTemplate(deployedPath)
	if err != nil {
		return err
	}
	desired, err := a.synthesize()
	if err != nil {
		return err
	}
	result, err := differ.Compare(deployed, desired)
	if err != nil {
		return err
	}
	return outputDiffResult(w, result, format)
}

func outputDiffResult(w io.Writer, result wetwire.DiffResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Summary.Total == 0 {
			fmt.Fprintln(w, "No changes")
			return nil
		}
		for _, e := range result.Added {
			fmt.Fprintf(w, "+ %s (%s)\n", e.Resource, e.Type)
		}
		for _, e := range result.Removed {
			fmt.Fprintf(w, "- %s (%s)\n", e.Resource, e.Type)
		}
		for _, e := range result.Modified {
			marker := "~"
			if e.Replacement {
				marker = "!"
			}
			fmt.Fprintf(w, "%s %s (%s)\n", marker, e.Resource, e.Type)
			for _, c := range e.Changes {
				fmt.Fprintf(w, "    %s\n", c)
			}
		}
		fmt.Fprintf(w, "%d added, %d removed, %d modified (%d replaced)\n",
			result.Summary.Added, result.Summary.Removed, result.Summary.Modified, result.Summary.Replacements)

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
