package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/multibuild/internal/cli/output"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
	"github.com/leapstack-labs/multibuild/internal/pipeline"
	"github.com/leapstack-labs/multibuild/internal/watch"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Watch bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build [target...]",
		Short: "Build all targets or the named targets",
		Long: `Build the library for every catalogue target, or only the named targets.

All requested targets build concurrently. Each target writes index.js and its
sourcemap to <out_dir>/<target>/; targets with minify enabled also write
index.min.js. A failed minification is reported but does not fail the build.`,
		Example: `  # Build every target
  multibuild build

  # Build the server runtime and the browser global
  multibuild build server-runtime browser-global

  # Rebuild affected targets on change
  multibuild build --watch

  # Machine-readable report
  multibuild build -o json`,
		ValidArgsFunction: completeTargets,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rebuild affected targets when sources change")

	return cmd
}

func runBuild(cmd *cobra.Command, ids []string, opts *BuildOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	stack, err := NewStack(cc, false)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	ctx := cmd.Context()
	rep, buildErr := build(ctx, stack.Orchestrator, ids)
	if rep == nil {
		return buildErr
	}
	stack.WriteMetrics(cc.Cfg, cc.Logger)
	if err := renderReport(cc.Renderer, cc.Cfg.Root, rep); err != nil {
		return err
	}

	if !opts.Watch {
		return reportError(rep, buildErr)
	}

	w, err := watch.New(watch.Config{
		Root:     cc.Cfg.Root,
		Skip:     skipDirs(cc),
		Debounce: cc.Cfg.Watch.Debounce,
		Builder:  stack.Orchestrator,
		OnReport: func(r *orchestrator.Report) {
			stack.WriteMetrics(cc.Cfg, cc.Logger)
			if err := renderReport(cc.Renderer, cc.Cfg.Root, r); err != nil {
				cc.Logger.Warn("failed to render report", "error", err)
			}
		},
		Logger: cc.Logger,
	})
	if err != nil {
		return err
	}
	return w.Run(ctx, rep)
}

func build(ctx context.Context, orch *orchestrator.Orchestrator, ids []string) (*orchestrator.Report, error) {
	if len(ids) == 0 {
		return orch.BuildAll(ctx)
	}
	return orch.BuildSubset(ctx, ids)
}

func reportError(rep *orchestrator.Report, err error) error {
	if err == nil {
		return nil
	}
	failed := rep.Failed()
	return fmt.Errorf("%d of %d target(s) failed: %w", len(failed), len(rep.Targets), err)
}

// skipDirs lists directories the watcher ignores: build output and state.
func skipDirs(cc *CommandContext) []string {
	skip := []string{firstSegment(cc.Cfg.OutDir)}
	if cc.Cfg.HistoryEnabled() {
		if rel, err := filepath.Rel(cc.Cfg.Root, cc.Cfg.HistoryPath); err == nil && !strings.HasPrefix(rel, "..") {
			skip = append(skip, firstSegment(rel))
		}
	}
	return skip
}

func firstSegment(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	if i := strings.IndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return p
}

func renderReport(r *output.Renderer, root string, rep *orchestrator.Report) error {
	if r.Structured() {
		return r.Structure(rep.Summary())
	}

	styles := r.Styles()
	rows := make([][]string, 0, len(rep.Targets))
	for _, ts := range rep.Summary().Targets {
		status := ts.Status
		switch ts.Status {
		case string(pipeline.StatusSuccess):
			status = styles.Success.Render(status)
		case string(pipeline.StatusFailed):
			status = styles.Error.Render(status)
		default:
			status = styles.Muted.Render(status)
		}

		var size, minified string
		for _, a := range ts.Artifacts {
			rel := relPath(root, a.CodePath)
			if filepath.Base(a.CodePath) == "index.min.js" {
				minified = output.FormatBytes(a.CodeBytes)
				continue
			}
			size = fmt.Sprintf("%s (%s)", rel, output.FormatBytes(a.CodeBytes))
		}

		var notes []string
		if ts.Error != "" {
			notes = append(notes, ts.Error)
		}
		if ts.MinifyError != "" {
			notes = append(notes, styles.Warning.Render(ts.MinifyError))
		}
		if n := len(ts.Warnings); n > 0 {
			notes = append(notes, fmt.Sprintf("%d warning(s)", n))
		}

		rows = append(rows, []string{ts.ID, status, size, minified, fmt.Sprintf("%dms", ts.DurationMS), strings.Join(notes, "; ")})
	}
	r.Table([]string{"Target", "Status", "Output", "Minified", "Duration", "Notes"}, rows)

	summary := fmt.Sprintf("run %s: %d target(s) in %dms", rep.RunID, len(rep.Outcomes()), rep.Duration.Milliseconds())
	switch {
	case rep.Succeeded():
		r.Println(styles.Success.Render(summary))
	default:
		r.Println(styles.Error.Render(fmt.Sprintf("%s, %d failed", summary, len(rep.Failed()))))
	}
	return nil
}

func relPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}
