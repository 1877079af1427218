package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/multibuild/internal/orchestrator"
	"github.com/leapstack-labs/multibuild/internal/server"
	"github.com/leapstack-labs/multibuild/internal/watch"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, then serve artifacts with live status and metrics",
		Long: `Build every target, then serve the output directory over HTTP.

Endpoints:
  /          artifacts from out_dir
  /status    the last build report as JSON
  /events    server-sent "build" events after each rebuild
  /metrics   Prometheus metrics`,
		Example: `  # Serve on the default address and rebuild on change
  multibuild serve --watch

  # Custom address
  multibuild serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from serve.addr)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rebuild affected targets when sources change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	stack, err := NewStack(cc, true)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	srv := server.New(server.Config{
		Addr:    cc.Cfg.Serve.Addr,
		OutDir:  filepath.Join(cc.Cfg.Root, cc.Cfg.OutDir),
		Metrics: stack.Metrics.Handler(),
		Logger:  cc.Logger,
	})

	ctx := cmd.Context()
	rep, err := stack.Orchestrator.BuildAll(ctx)
	if rep == nil {
		return err
	}
	stack.WriteMetrics(cc.Cfg, cc.Logger)
	srv.SetReport(rep)
	if err := renderReport(cc.Renderer, cc.Cfg.Root, rep); err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Serve(egctx)
	})

	if opts.Watch {
		w, err := watch.New(watch.Config{
			Root:     cc.Cfg.Root,
			Skip:     skipDirs(cc),
			Debounce: cc.Cfg.Watch.Debounce,
			Builder:  stack.Orchestrator,
			OnReport: func(r *orchestrator.Report) {
				stack.WriteMetrics(cc.Cfg, cc.Logger)
				srv.SetReport(r)
			},
			Logger: cc.Logger,
		})
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return w.Run(egctx, rep)
		})
	}

	return eg.Wait()
}
