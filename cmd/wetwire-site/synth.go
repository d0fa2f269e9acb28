package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/internal/template"
)

func newSynthCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate the CloudFormation template",
		Long: `Synth plans the configured topology and renders it as a CloudFormation
template with DependsOn in creation order and the BucketId,
DistributionEndpoint and PrincipalRef outputs.

Examples:
    wetwire-site synth
    wetwire-site synth -f yaml -o template.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(a, cmd.OutOrStdout(), outputFormat, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runSynth(a *app, w io.Writer, format, outputFile string) error {
	tmpl, err := a.synthesize()
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case "json":
		data, err = template.ToJSON(tmpl)
	case "yaml":
		data, err = template.ToYAML(tmpl)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return err
	}

	if outputFile == "" {
		fmt.Fprintln(w, string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return err
	}
	a.log.Info("template written", zap.String("path", outputFile))
	return nil
}

// synthesize plans the configured topology and builds its template.
func (a *app) synthesize() (*wetwire.Template, error) {
	cfg, descs, err := a.load()
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(descs)
	if err != nil {
		return nil, err
	}
	return template.NewBuilder(p).
		WithDescription(fmt.Sprintf("Static site %s served from bucket %s", cfg.Stack, cfg.S3.BucketName)).
		Build()
}
