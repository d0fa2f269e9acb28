package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/config"
	"github.com/lex00/wetwire-site-go/internal/edge"
	"github.com/lex00/wetwire-site-go/internal/lifecycle"
	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/platform/local"
	"github.com/lex00/wetwire-site-go/internal/provision"
	"github.com/lex00/wetwire-site-go/internal/trigger"
	"github.com/lex00/wetwire-site-go/resource"
)

// LogHandlerRef names the built-in upload handler that logs each event.
const LogHandlerRef = "log"

func newServeCmd(a *app) *cobra.Command {
	var (
		addr         string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "serve [content-dir]",
		Short: "Run the stack in-process and serve it",
		Long: `Serve plans and applies the stack against an in-process platform, uploads
the content directory into the bucket and serves the distribution's edge on
--addr together with Prometheus metrics on /metrics.

The listener speaks plain HTTP. Viewer protocol enforcement honours
X-Forwarded-Proto, so put a TLS-terminating proxy in front of it or send the
header yourself:

    curl -H 'X-Forwarded-Proto: https' http://localhost:8080/

On SIGINT or SIGTERM the stack is destroyed and the report is printed.

Upload triggers may reference the built-in "log" handler.

Examples:
    wetwire-site serve ./dist
    wetwire-site serve ./dist --addr :9000 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentDir := ""
			if len(args) == 1 {
				contentDir = args[0]
			}
			return runServe(a, cmd.OutOrStdout(), contentDir, addr, outputFormat)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for the edge and /metrics")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Report format: text or json")

	return cmd
}

func runServe(a *app, w io.Writer, contentDir, addr, format string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, descs, err := a.load()
	if err != nil {
		return err
	}

	s, err := startSite(ctx, a.log, cfg, descs)
	if err != nil {
		return err
	}
	applied := s.applyResult()
	if err := printReport(w, applied, format); err != nil {
		return err
	}
	if !applied.Success {
		destroyed, derr := s.shutdown(context.Background())
		_ = printReport(w, destroyed, format)
		return multierr.Append(fmt.Errorf("apply failed"), derr)
	}

	if contentDir != "" {
		files, size, err := s.upload(ctx, contentDir)
		if err != nil {
			a.log.Error("upload failed", zap.String("dir", contentDir), zap.Error(err))
		} else {
			fmt.Fprintf(w, "Uploaded %d files (%s) to %s\n", files, humanize.Bytes(uint64(size)), cfg.S3.BucketName)
		}
	}

	srv := &http.Server{Addr: addr, Handler: s.handler(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	fmt.Fprintf(w, "Serving %s on %s (Ctrl+C to destroy)\n", applied.Outputs.DistributionEndpoint, addr)

	select {
	case <-ctx.Done():
		err = nil
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))

	destroyed, derr := s.shutdown(shutdownCtx)
	if perr := printReport(w, destroyed, format); perr != nil {
		err = multierr.Append(err, perr)
	}
	return multierr.Append(err, derr)
}

// site is a stack running on the in-process platform.
type site struct {
	log        *zap.Logger
	registry   *prometheus.Registry
	plat       *local.Platform
	dispatcher *trigger.Dispatcher
	stack      *lifecycle.Stack
	edge       *edge.Handler
	bucket     string
}

// builtinHandlers returns the upload handlers serve can wire triggers to.
func builtinHandlers(log *zap.Logger) *trigger.Registry {
	reg := trigger.NewRegistry()
	reg.Register(LogHandlerRef, trigger.HandlerFunc(func(_ context.Context, ev platform.Event) error {
		log.Info("object uploaded",
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
			zap.String("size", humanize.Bytes(uint64(ev.Size))))
		return nil
	}))
	return reg
}

// startSite plans and applies descs on a fresh in-process platform. An apply
// failure is not returned as an error; it is visible in applyResult and the
// caller is expected to shut the site down.
func startSite(ctx context.Context, log *zap.Logger, cfg *config.Config, descs []resource.Descriptor) (*site, error) {
	s := &site{
		log:      log,
		registry: prometheus.NewRegistry(),
		bucket:   cfg.S3.BucketName,
	}
	observer := metrics.NewObserver(s.registry)
	handlers := builtinHandlers(log)

	s.dispatcher = trigger.NewDispatcher(handlers, trigger.WithLogger(log), trigger.WithObserver(observer))
	plat, err := local.New(local.WithLogger(log), local.WithEventSink(s.dispatcher))
	if err != nil {
		return nil, multierr.Append(err, s.dispatcher.Close())
	}
	s.plat = plat

	prov := provision.New(plat, handlers, provision.WithLogger(log), provision.WithObserver(observer))
	s.stack = lifecycle.New(cfg.Stack, descs, prov, lifecycle.WithLogger(log), lifecycle.WithObserver(observer))

	if _, err := s.stack.Plan(); err != nil {
		return s, nil
	}
	if _, err := s.stack.Apply(ctx); err != nil {
		return s, nil
	}

	out, err := s.stack.Outputs()
	if err != nil {
		return nil, s.abort(err)
	}
	info, err := plat.GetDistribution(ctx, out.DistributionID)
	if err != nil {
		return nil, s.abort(err)
	}
	edgeCfg, err := edge.ConfigFromDistribution(info)
	if err != nil {
		return nil, s.abort(err)
	}
	s.edge = edge.New(plat, edgeCfg, edge.WithLogger(log), edge.WithObserver(observer))
	return s, nil
}

// handler serves the edge on every path and Prometheus metrics on /metrics.
func (s *site) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", s.edge)
	return mux
}

// upload copies every regular file under dir into the bucket, keyed by its
// slash-separated path relative to dir.
func (s *site) upload(ctx context.Context, dir string) (int, int64, error) {
	var (
		files int
		size  int64
	)
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := s.plat.PutObject(ctx, s.bucket, filepath.ToSlash(rel), body, contentType); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		files++
		size += int64(len(body))
		return nil
	})
	return files, size, err
}

// shutdown destroys the stack, drains pending upload events and stops the
// platform.
func (s *site) shutdown(ctx context.Context) (wetwire.DestroyResult, error) {
	var (
		result wetwire.DestroyResult
		err    error
	)
	switch s.stack.State() {
	case lifecycle.Applied, lifecycle.Failed:
		report, derr := s.stack.Destroy(ctx)
		result = destroyResult(report)
		err = derr
	default:
		result = wetwire.DestroyResult{Success: true, State: string(s.stack.State())}
	}
	if cerr := s.dispatcher.Close(); cerr != nil {
		s.log.Warn("upload events dropped", zap.Error(cerr))
	}
	s.plat.Close()
	return result, err
}

func (s *site) abort(err error) error {
	_, derr := s.shutdown(context.Background())
	return multierr.Append(err, derr)
}

func (s *site) applyResult() wetwire.ApplyResult {
	report := s.stack.Report()
	result := wetwire.ApplyResult{
		Success:     report.State == lifecycle.Applied,
		State:       string(report.State),
		LastApplied: report.LastApplied,
		Created:     report.Created,
	}
	if f, ok := report.Failed(); ok {
		result.Failure = &wetwire.Failure{Resource: f.Resource, Category: f.Category, Reason: f.Reason}
	}
	if out, err := s.stack.Outputs(); err == nil {
		result.Outputs = &wetwire.SiteOutputs{
			BucketID:             out.BucketID,
			DistributionID:       out.DistributionID,
			DistributionEndpoint: out.DistributionEndpoint,
			PrincipalRef:         out.PrincipalRef,
		}
	}
	return result
}

func destroyResult(report lifecycle.Report) wetwire.DestroyResult {
	result := wetwire.DestroyResult{
		Success:  report.State == lifecycle.Destroyed,
		State:    string(report.State),
		Deleted:  report.Deleted,
		Retained: report.Retained,
	}
	for _, f := range report.Failures {
		result.Failures = append(result.Failures, wetwire.Failure{Resource: f.Resource, Category: f.Category, Reason: f.Reason})
	}
	return result
}

func printReport(w io.Writer, result any, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	case "text":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	switch r := result.(type) {
	case wetwire.ApplyResult:
		if r.Success {
			fmt.Fprintf(w, "Stack %s: %d resources created\n", r.State, len(r.Created))
			if r.Outputs != nil {
				fmt.Fprintf(w, "  Bucket:       %s\n", r.Outputs.BucketID)
				fmt.Fprintf(w, "  Distribution: %s\n", r.Outputs.DistributionID)
				fmt.Fprintf(w, "  Endpoint:     %s\n", r.Outputs.DistributionEndpoint)
				fmt.Fprintf(w, "  Principal:    %s\n", r.Outputs.PrincipalRef)
			}
			return nil
		}
		fmt.Fprintf(w, "Stack %s", r.State)
		if r.LastApplied != "" {
			fmt.Fprintf(w, " after %s", r.LastApplied)
		}
		fmt.Fprintln(w)
		if r.Failure != nil {
			fmt.Fprintf(w, "  %s: %s: %s\n", r.Failure.Category, r.Failure.Resource, r.Failure.Reason)
		}
	case wetwire.DestroyResult:
		fmt.Fprintf(w, "Stack %s: %d deleted, %d retained\n", r.State, len(r.Deleted), len(r.Retained))
		for _, name := range r.Retained {
			fmt.Fprintf(w, "  retained %s\n", name)
		}
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s: %s: %s\n", f.Category, f.Resource, f.Reason)
		}
	}
	return nil
}
