// Package orchestrator fans build jobs out over the target catalogue and
// collects their outcomes into a Report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/metrics"
	"github.com/leapstack-labs/multibuild/internal/pipeline"
	"github.com/leapstack-labs/multibuild/internal/target"
)

// Aggregation selects how a run reports failures.
type Aggregation string

const (
	// SettleAll waits for every job and joins all fatal errors.
	SettleAll Aggregation = "settle-all"
	// FailFast returns on the first fatal error. Jobs already started keep
	// running to completion in the background.
	FailFast Aggregation = "fail-fast"
)

// ParseAggregation validates an aggregation mode. Empty selects SettleAll.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(s) {
	case "", SettleAll:
		return SettleAll, nil
	case FailFast:
		return FailFast, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q (want %s or %s)", s, SettleAll, FailFast)
	}
}

// Runner builds one target. *pipeline.Job implements it.
type Runner interface {
	Run(ctx context.Context, id string, d target.Descriptor) pipeline.Outcome
}

// History persists runs. Failures are logged and never affect the build.
type History interface {
	CreateRun(ctx context.Context, runID string, targets []string, started time.Time) error
	RecordOutcome(ctx context.Context, runID string, o pipeline.Outcome) error
	CompleteRun(ctx context.Context, runID string, failed bool, message string, finished time.Time) error
}

// Config holds orchestrator configuration.
type Config struct {
	// Catalogue is the set of known targets. Nil means target.Default().
	Catalogue *target.Catalogue
	// Runner builds individual targets (required).
	Runner Runner
	// Aggregation defaults to SettleAll.
	Aggregation Aggregation
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Recorder receives run metrics (optional).
	Recorder metrics.Recorder
	// History stores run records (optional).
	History History
}

// Orchestrator launches target builds.
type Orchestrator struct {
	catalogue   *target.Catalogue
	runner      Runner
	aggregation Aggregation
	logger      *slog.Logger
	recorder    metrics.Recorder
	history     History

	inFlight atomic.Int64
}

// New validates the catalogue and returns an Orchestrator. An invalid
// catalogue entry rejects the whole configuration before any job runs.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Runner == nil {
		return nil, errors.New("orchestrator: runner is required")
	}
	catalogue := cfg.Catalogue
	if catalogue == nil {
		catalogue = target.Default()
	}
	if err := catalogue.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target catalogue: %w", err)
	}
	aggregation, err := ParseAggregation(string(cfg.Aggregation))
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Orchestrator{
		catalogue:   catalogue,
		runner:      cfg.Runner,
		aggregation: aggregation,
		logger:      logger,
		recorder:    recorder,
		history:     cfg.History,
	}, nil
}

// Catalogue returns the validated catalogue.
func (o *Orchestrator) Catalogue() *target.Catalogue {
	return o.catalogue
}

// BuildAll builds every catalogue target concurrently.
func (o *Orchestrator) BuildAll(ctx context.Context) (*Report, error) {
	return o.build(ctx, o.catalogue.IDs())
}

// BuildOne builds a single target.
func (o *Orchestrator) BuildOne(ctx context.Context, id string) (*Report, error) {
	return o.BuildSubset(ctx, []string{id})
}

// BuildSubset builds the named targets concurrently. Unknown ids are
// rejected before anything runs. Duplicates are built once.
func (o *Orchestrator) BuildSubset(ctx context.Context, ids []string) (*Report, error) {
	if len(ids) == 0 {
		return nil, errors.New("no targets requested")
	}
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	var unknown []error
	for _, id := range ids {
		if _, ok := o.catalogue.Lookup(id); !ok {
			unknown = append(unknown, &UnknownTargetError{ID: id})
			continue
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unknown) > 0 {
		return nil, errors.Join(unknown...)
	}
	return o.build(ctx, unique)
}

// BuildServerRuntime builds the CommonJS server runtime target.
func (o *Orchestrator) BuildServerRuntime(ctx context.Context) (*Report, error) {
	return o.BuildOne(ctx, target.ServerRuntime)
}

// BuildBrowserGlobal builds the minified browser global target.
func (o *Orchestrator) BuildBrowserGlobal(ctx context.Context) (*Report, error) {
	return o.BuildOne(ctx, target.BrowserGlobal)
}

type result struct {
	index   int
	outcome pipeline.Outcome
}

// build runs one goroutine per id. The returned error is the aggregated
// fatal error; the report is always non-nil.
func (o *Orchestrator) build(ctx context.Context, ids []string) (*Report, error) {
	rep := &Report{
		RunID:       uuid.NewString(),
		Targets:     ids,
		Aggregation: o.aggregation,
		Started:     time.Now(),
		outcomes:    make([]*pipeline.Outcome, len(ids)),
	}
	logger := o.logger.With(logfields.RunID(rep.RunID))
	logger.Info("starting build", logfields.Count(len(ids)))
	o.createRun(ctx, logger, rep)

	// Buffered so jobs left running after a fail-fast return never block.
	results := make(chan result, len(ids))
	for i, id := range ids {
		d, _ := o.catalogue.Lookup(id)
		o.recorder.SetInFlight(int(o.inFlight.Add(1)))
		go func(i int, id string, d target.Descriptor) {
			out := o.runner.Run(ctx, id, d)
			o.recorder.SetInFlight(int(o.inFlight.Add(-1)))
			results <- result{index: i, outcome: out}
		}(i, id, d)
	}

	for n := range ids {
		r := <-results
		rep.outcomes[r.index] = &r.outcome
		o.recordOutcome(ctx, logger, rep.RunID, r.outcome)

		if r.outcome.Failed() && o.aggregation == FailFast {
			rep.Partial = n+1 < len(ids)
			break
		}
	}

	rep.Duration = time.Since(rep.Started)
	o.recorder.ObserveRunDuration(rep.Duration)
	err := rep.Err()
	o.completeRun(ctx, logger, rep, err)

	if err != nil {
		logger.Error("build failed", logfields.Count(len(rep.Failed())), logfields.Duration(rep.Duration), logfields.Error(err))
		return rep, err
	}
	logger.Info("build completed", logfields.Count(len(rep.Outcomes())), logfields.Duration(rep.Duration))
	return rep, nil
}

func (o *Orchestrator) createRun(ctx context.Context, logger *slog.Logger, rep *Report) {
	if o.history == nil {
		return
	}
	if err := o.history.CreateRun(ctx, rep.RunID, rep.Targets, rep.Started); err != nil {
		logger.Warn("failed to record run", logfields.Error(err))
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, logger *slog.Logger, runID string, out pipeline.Outcome) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordOutcome(ctx, runID, out); err != nil {
		logger.Warn("failed to record target outcome", logfields.Target(out.TargetID), logfields.Error(err))
	}
}

func (o *Orchestrator) completeRun(ctx context.Context, logger *slog.Logger, rep *Report, err error) {
	if o.history == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	if herr := o.history.CompleteRun(ctx, rep.RunID, err != nil, msg, rep.Started.Add(rep.Duration)); herr != nil {
		logger.Warn("failed to complete run record", logfields.Error(herr))
	}
}

// UnknownTargetError is returned when a requested id is not in the catalogue.
type UnknownTargetError struct {
	ID string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q", e.ID)
}
