package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWatchCmd creates the "watch" subcommand for re-planning on config changes.
func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce     time.Duration
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-plan on configuration changes",
		Long: `Watch monitors the configuration file and re-plans the stack whenever it
changes. Rapid successive writes are debounced.

Examples:
    wetwire-site watch
    wetwire-site watch -c prod.yaml --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(a, cmd.OutOrStdout(), watchOptions{
				debounce:     debounce,
				outputFormat: outputFormat,
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Plan output format: text or json")

	return cmd
}

type watchOptions struct {
	debounce     time.Duration
	outputFormat string
}

// runWatch monitors the config file and re-plans on changes.
func runWatch(a *app, w io.Writer, opts watchOptions) error {
	configPath, err := filepath.Abs(a.configPath)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Editors replace files on save, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", configPath, err)
	}
	fmt.Fprintf(w, "Watching: %s\n", configPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	replan := func() {
		if err := runPlan(a, w, opts.outputFormat); err != nil {
			a.log.Debug("plan failed", zap.Error(err))
		}
	}
	replan()

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Fprintln(w, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isConfigChange(event, configPath) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(opts.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Fprintf(w, "\n[%s] Change detected, re-planning...\n", time.Now().Format("15:04:05"))
			replan()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watch error", zap.Error(err))

		case <-sigChan:
			fmt.Fprintln(w, "\nStopping watch...")
			return nil
		}
	}
}

// isConfigChange reports whether event writes or recreates the config file.
func isConfigChange(event fsnotify.Event, configPath string) bool {
	if filepath.Clean(event.Name) != configPath {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}
