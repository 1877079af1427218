package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/multibuild/internal/fsutil"
	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
)

// DefaultDebounce is the quiet period before a rebuild starts.
const DefaultDebounce = 100 * time.Millisecond

// Builder rebuilds a subset of targets. *orchestrator.Orchestrator implements it.
type Builder interface {
	BuildSubset(ctx context.Context, ids []string) (*orchestrator.Report, error)
}

// Config holds watcher configuration.
type Config struct {
	// Root is the project root to watch (required).
	Root string
	// Skip lists directory names never watched, e.g. the output directory.
	Skip []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Builder runs rebuilds (required).
	Builder Builder
	// OnReport is called after every rebuild (optional).
	OnReport func(*orchestrator.Report)
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Watcher rebuilds affected targets on source changes.
type Watcher struct {
	root     string
	skip     []string
	debounce time.Duration
	builder  Builder
	onReport func(*orchestrator.Report)
	logger   *slog.Logger
	index    *Index
}

// New returns a Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Builder == nil {
		return nil, errors.New("watch: builder is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	onReport := cfg.OnReport
	if onReport == nil {
		onReport = func(*orchestrator.Report) {}
	}
	skip := append([]string{".git", "node_modules"}, cfg.Skip...)

	return &Watcher{
		root:     root,
		skip:     skip,
		debounce: debounce,
		builder:  cfg.Builder,
		onReport: onReport,
		logger:   logger,
		index:    NewIndex(),
	}, nil
}

// Run watches until ctx is done. initial seeds the index with the inputs of
// a build that already ran.
func (w *Watcher) Run(ctx context.Context, initial *orchestrator.Report) error {
	if initial != nil {
		w.index.Update(initial)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", logfields.Path(w.root))

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]bool)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, ok := w.relative(event.Name)
			if !ok {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", logfields.Path(event.Name), logfields.Error(err))
					}
					continue
				}
			}
			pending[rel] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.rebuild(ctx, changed)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, changed []string) {
	ids := w.index.Targets(changed)
	if len(ids) == 0 {
		w.logger.Debug("change affects no target", logfields.Count(len(changed)))
		return
	}
	w.logger.Info("change detected, rebuilding", "changed", changed, "targets", ids)

	rep, err := w.builder.BuildSubset(ctx, ids)
	if rep != nil {
		w.index.Update(rep)
		w.onReport(rep)
	}
	if err != nil {
		w.logger.Error("rebuild failed", logfields.Error(err))
	}
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	dirs, err := fsutil.FindDirs(dir, w.skip...)
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	return nil
}

// relative converts an event path to the slash-separated project-relative
// form used by bundler inputs. Paths inside skipped directories are dropped.
func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, s := range w.skip {
		if rel == s || hasDirPrefix(rel, s) {
			return "", false
		}
	}
	return rel, true
}

func hasDirPrefix(rel, dir string) bool {
	return len(rel) > len(dir) && rel[:len(dir)] == dir && rel[len(dir)] == '/'
}
