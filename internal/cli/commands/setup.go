// Package commands implements the multibuild subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/cli/config"
	"github.com/leapstack-labs/multibuild/internal/cli/output"
	"github.com/leapstack-labs/multibuild/internal/history"
	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/metrics"
	"github.com/leapstack-labs/multibuild/internal/minify"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
	"github.com/leapstack-labs/multibuild/internal/pipeline"
	"github.com/leapstack-labs/multibuild/internal/resolve"
	"github.com/leapstack-labs/multibuild/internal/target"
)

// CommandContext holds the shared dependencies of a command.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext reads the configuration and logger stored by the root
// command, loading them from flags when the command runs standalone.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, ok := config.FromContext(cmd.Context())
	if !ok {
		var err error
		if cfg, err = config.Load("", cmd.Flags()); err != nil {
			return nil, err
		}
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// Stack is the wired build pipeline for one command invocation.
type Stack struct {
	Orchestrator *orchestrator.Orchestrator
	// Metrics is nil unless a metrics file or server needs it.
	Metrics *metrics.PrometheusRecorder
	History *history.SQLiteStore
}

// Close releases the history store.
func (s *Stack) Close() error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}

// WriteMetrics writes the Prometheus textfile when one is configured.
func (s *Stack) WriteMetrics(cfg *config.Config, logger *slog.Logger) {
	if s.Metrics == nil || cfg.MetricsFile == "" {
		return
	}
	if err := s.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("failed to write metrics file", logfields.Path(cfg.MetricsFile), logfields.Error(err))
	}
}

// NewStack wires bundler, minifier, job, history and orchestrator from the
// configuration. withMetrics forces a Prometheus recorder.
func NewStack(cc *CommandContext, withMetrics bool) (*Stack, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	catalogue, err := cfg.Catalogue()
	if err != nil {
		return nil, err
	}
	strategy := pipeline.StrategyFor(cfg.TrustMinify)
	aggregation, err := orchestrator.ParseAggregation(cfg.Aggregation)
	if err != nil {
		return nil, err
	}

	stack := &Stack{}
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if withMetrics || cfg.MetricsFile != "" {
		stack.Metrics = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
		recorder = stack.Metrics
	}

	b, err := bundler.NewESBuild(cfg.Root, logger)
	if err != nil {
		return nil, err
	}
	layout := resolve.Layout{OutDir: cfg.OutDir, Entry: cfg.Entry}
	if layout.Entry == "" {
		layout.Entry = target.DefaultEntry
	}
	job, err := pipeline.NewJob(pipeline.Config{
		Bundler:  b,
		Minifier: minify.NewESBuild(),
		Strategy: strategy,
		Layout:   layout,
		Logger:   logger,
		Recorder: recorder,
	})
	if err != nil {
		return nil, err
	}

	orchCfg := orchestrator.Config{
		Catalogue:   catalogue,
		Runner:      job,
		Aggregation: aggregation,
		Logger:      logger,
		Recorder:    recorder,
	}
	if cfg.HistoryEnabled() {
		store, err := history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open build history: %w", err)
		}
		stack.History = store
		orchCfg.History = store
	}

	stack.Orchestrator, err = orchestrator.New(orchCfg)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	logger.Debug("build stack ready",
		logfields.Strategy(string(strategy)),
		"aggregation", aggregation,
		logfields.Count(catalogue.Len()),
	)
	return stack, nil
}

// completeTargets offers catalogue ids for shell completion.
func completeTargets(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cfg, ok := config.FromContext(cmd.Context())
	cat := target.Default()
	if ok {
		if c, err := cfg.Catalogue(); err == nil {
			cat = c
		}
	}
	return cat.IDs(), cobra.ShellCompDirectiveNoFileComp
}
