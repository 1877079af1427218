package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/multibuild/internal/cli/output"
	"github.com/leapstack-labs/multibuild/internal/history"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded builds",
		Long: `List recent build runs, or the per-target results of one run.

Runs are recorded in the SQLite database at history_path
(default .multibuild/history.db).`,
		Example: `  # Recent runs
  multibuild history

  # Target results of a run
  multibuild history 0b8e6a2c-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string, opts *HistoryOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if !cc.Cfg.HistoryEnabled() {
		return errors.New("build history is disabled (history_path is off)")
	}

	store, err := history.Open(cc.Cfg.HistoryPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("failed to open build history: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		builds, err := store.TargetBuilds(ctx, run.ID)
		if err != nil {
			return err
		}
		return renderRun(cc.Renderer, run, builds)
	}

	runs, err := store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return renderRuns(cc.Renderer, runs)
}

func renderRuns(r *output.Renderer, runs []*history.Run) error {
	if r.Structured() {
		if runs == nil {
			runs = []*history.Run{}
		}
		return r.Structure(runs)
	}
	if len(runs) == 0 {
		r.Println("No builds recorded yet.")
		return nil
	}

	styles := r.Styles()
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			statusStyle(styles, string(run.Status)),
			fmt.Sprintf("%dms", run.Duration().Milliseconds()),
			strings.Join(run.Targets, ", "),
		})
	}
	r.Table([]string{"Run", "Started", "Status", "Duration", "Targets"}, rows)
	return nil
}

type runDetail struct {
	Run    *history.Run           `json:"run" yaml:"run"`
	Builds []*history.TargetBuild `json:"builds" yaml:"builds"`
}

func renderRun(r *output.Renderer, run *history.Run, builds []*history.TargetBuild) error {
	if r.Structured() {
		return r.Structure(runDetail{Run: run, Builds: builds})
	}

	styles := r.Styles()
	r.Println(styles.Header1.Render(fmt.Sprintf("Run %s (%s)", run.ID, run.Status)))
	if run.Error != "" {
		r.Println(styles.Muted.Render(run.Error))
	}

	rows := make([][]string, 0, len(builds))
	for _, b := range builds {
		notes := b.Error
		if b.MinifyError != "" {
			notes = b.MinifyError
		}
		rows = append(rows, []string{
			b.Target,
			statusStyle(styles, b.Status),
			output.FormatBytes(b.CodeBytes),
			formatOptionalBytes(b.MinifiedBytes),
			fmt.Sprintf("%dms", b.Duration.Milliseconds()),
			fmt.Sprint(b.Warnings),
			notes,
		})
	}
	r.Table([]string{"Target", "Status", "Size", "Minified", "Duration", "Warnings", "Notes"}, rows)
	return nil
}

func statusStyle(styles *output.Styles, status string) string {
	switch status {
	case "success", string(history.RunStatusSucceeded):
		return styles.Success.Render(status)
	case "failed":
		return styles.Error.Render(status)
	default:
		return styles.Muted.Render(status)
	}
}

func formatOptionalBytes(n int64) string {
	if n == 0 {
		return "-"
	}
	return output.FormatBytes(n)
}
