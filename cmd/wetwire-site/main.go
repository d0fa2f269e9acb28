// Command wetwire-site plans, synthesises and runs a static single-page
// application stack: a private bucket served by a CDN distribution through an
// origin access identity.
//
// Usage:
//
//	wetwire-site plan                 Show the creation order
//	wetwire-site synth -f yaml        Generate the CloudFormation template
//	wetwire-site graph -f mermaid     Draw the dependency graph
//	wetwire-site diff deployed.yaml   Compare with a deployed template
//	wetwire-site optimize            Suggest improvements
//	wetwire-site validate             Plan and cfn-lint the template
//	wetwire-site serve ./dist         Run the stack in-process and serve it
//	wetwire-site watch                Re-plan when the config changes
//	wetwire-site version              Show version
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/config"
	wlog "github.com/lex00/wetwire-site-go/internal/log"
	"github.com/lex00/wetwire-site-go/internal/topology"
	"github.com/lex00/wetwire-site-go/resource"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	configSet  bool
	logConfig  *wlog.Configuration
	log        *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "wetwire-site",
		Short: "Deploy a single-page application behind a CDN",
		Long: `wetwire-site provisions a private bucket, an origin access identity, the
bucket policy granting it read access and a CDN distribution that serves the
bucket over HTTPS with single-page application error fallbacks.

Configure the stack in a YAML or JSON file:

    s3:
      bucketName: site-assets

Then plan and synthesise it:

    wetwire-site plan
    wetwire-site synth -f yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = wlog.New(a.logConfig, cmd.ErrOrStderr())
			a.configSet = cmd.Flags().Changed("config")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "site.yaml", "Stack configuration file (SITE_* environment variables override it)")
	a.logConfig = wlog.RegisterFlags(rootCmd)
	a.logConfig.ParseFromEnvironment()

	rootCmd.AddCommand(
		newPlanCmd(a),
		newSynthCmd(a),
		newGraphCmd(a),
		newDiffCmd(a),
		newOptimizeCmd(a),
		newValidateCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads the configuration and assembles the descriptors. A missing
// default config file is skipped so the stack can be configured from SITE_*
// variables alone; an explicit --config must exist.
func (a *app) load() (*config.Config, []resource.Descriptor, error) {
	path := a.configPath
	if !a.configSet {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	descs, err := topology.Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, descs, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wetwire-site %s\n", getVersion())
		},
	}
}
