package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/validation"
)

// newValidateCmd creates the "validate" subcommand.
func newValidateCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Plan the topology and lint the synthesised template",
		Long: `Validate plans the configured topology, synthesises the CloudFormation
template and runs cfn-lint over it.

Examples:
    wetwire-site validate
    wetwire-site validate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(a, cmd.OutOrStdout(), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runValidate(a *app, w io.Writer, format string) error {
	_, descs, err := a.load()
	if err != nil {
		return outputValidateResult(w, wetwire.ValidateResult{Errors: []string{err.Error()}}, format)
	}

	dir, err := os.MkdirTemp("", "wetwire-site-validate-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	result, err := validation.Validate(descs, dir)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return outputValidateResult(w, result.Contract(), format)
}

func outputValidateResult(w io.Writer, result wetwire.ValidateResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Success {
			fmt.Fprintf(w, "Validation passed: %d resources OK\n", result.Resources)
			for _, warnMsg := range result.Warnings {
				fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
			}
			return nil
		}

		fmt.Fprintln(w, "Validation FAILED:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  ERROR: %s\n", errMsg)
		}
		for _, warnMsg := range result.Warnings {
			fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return fmt.Errorf("validation failed")
	}
	return nil
}
