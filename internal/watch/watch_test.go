package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/minify"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
	"github.com/leapstack-labs/multibuild/internal/pipeline"
	"github.com/leapstack-labs/multibuild/internal/target"
	"github.com/leapstack-labs/multibuild/internal/testutil"
)

// reportFor builds a report through a real orchestrator with a stub runner.
func reportFor(t *testing.T, outcomes map[string]pipeline.Outcome) *orchestrator.Report {
	t.Helper()
	entries := make([]target.Entry, 0, len(outcomes))
	ids := make([]string, 0, len(outcomes))
	for id := range outcomes {
		entries = append(entries, target.Entry{ID: id, Descriptor: target.Descriptor{Format: target.FormatCommonJS}})
		ids = append(ids, id)
	}
	cat, err := target.NewCatalogue(entries...)
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.Config{Catalogue: cat, Runner: stubRunner(outcomes)})
	require.NoError(t, err)
	rep, _ := orch.BuildSubset(context.Background(), ids)
	return rep
}

type stubRunner map[string]pipeline.Outcome

func (s stubRunner) Run(_ context.Context, id string, _ target.Descriptor) pipeline.Outcome {
	return s[id]
}

func success(id string, inputs ...string) pipeline.Outcome {
	return pipeline.Outcome{
		TargetID: id,
		Status:   pipeline.StatusSuccess,
		Primary:  &bundler.Artifact{TargetID: id, Inputs: inputs},
	}
}

func TestIndex_Targets(t *testing.T) {
	x := NewIndex()
	x.Update(reportFor(t, map[string]pipeline.Outcome{
		"a": success("a", "src/index.js", "src/util.js"),
		"b": success("b", "src/other.js"),
		"c": {TargetID: "c", Status: pipeline.StatusFailed},
	}))

	assert.Equal(t, []string{"a", "c"}, x.Targets([]string{"src/util.js"}))
	assert.Equal(t, []string{"b", "c"}, x.Targets([]string{"src/other.js"}))
	assert.Equal(t, []string{"c"}, x.Targets([]string{"README.md"}))
	assert.Empty(t, x.Targets(nil))

	// A successful rebuild clears the stale mark.
	x.Update(reportFor(t, map[string]pipeline.Outcome{"c": success("c", "src/c.js")}))
	assert.Empty(t, x.Targets([]string{"README.md"}))
	assert.Equal(t, []string{"c"}, x.Targets([]string{"src/c.js"}))
}

func TestWatcher_Relative(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Root: root, Skip: []string{"build"}, Builder: &recordingBuilder{}})
	require.NoError(t, err)

	rel, ok := w.relative(filepath.Join(root, "src", "index.js"))
	assert.True(t, ok)
	assert.Equal(t, "src/index.js", rel)

	_, ok = w.relative(filepath.Join(root, "build", "server-runtime", "index.js"))
	assert.False(t, ok)

	rel, ok = w.relative(filepath.Join(root, "buildtools.js"))
	assert.True(t, ok)
	assert.Equal(t, "buildtools.js", rel)
}

type recordingBuilder struct {
	orch *orchestrator.Orchestrator

	mu    sync.Mutex
	calls [][]string
}

func (b *recordingBuilder) BuildSubset(ctx context.Context, ids []string) (*orchestrator.Report, error) {
	b.mu.Lock()
	b.calls = append(b.calls, ids)
	b.mu.Unlock()
	return b.orch.BuildSubset(ctx, ids)
}

func (b *recordingBuilder) rebuilt() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.calls...)
}

func TestWatcher_RebuildsAffectedTargets(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"src/index.js": testutil.LibrarySource,
		"src/util.js":  testutil.UtilSource,
		"src/other.js": "export const other = 1;\n",
	})
	logger := testutil.NewTestLogger(t)

	b, err := bundler.NewESBuild(root, logger)
	require.NoError(t, err)
	job, err := pipeline.NewJob(pipeline.Config{Bundler: b, Minifier: minify.NewESBuild(), Logger: logger})
	require.NoError(t, err)

	cat, err := target.NewCatalogue(
		target.Entry{ID: "lib", Descriptor: target.Descriptor{Format: target.FormatCommonJS, Target: "node 6"}},
		target.Entry{ID: "other", Descriptor: target.Descriptor{Format: target.FormatESModule, Compile: target.Bool(false), Src: "./src/other.js"}},
	)
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.Config{Catalogue: cat, Runner: job, Logger: logger})
	require.NoError(t, err)

	initial, err := orch.BuildAll(context.Background())
	require.NoError(t, err)

	builder := &recordingBuilder{orch: orch}
	reports := make(chan *orchestrator.Report, 4)
	w, err := New(Config{
		Root:     root,
		Skip:     []string{"build"},
		Debounce: 20 * time.Millisecond,
		Builder:  builder,
		OnReport: func(r *orchestrator.Report) { reports <- r },
		Logger:   logger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, initial) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Let the watcher register its directories before touching files.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "util.js"),
		[]byte(`export function shout(s) { return s + "?"; }`+"\n"), 0o644))

	select {
	case rep := <-reports:
		assert.Equal(t, []string{"lib"}, rep.Targets)
		assert.True(t, rep.Succeeded())
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after source change")
	}
	assert.Contains(t, testutil.ReadFile(t, root, "build/lib/index.js"), `"?"`)
	assert.Equal(t, [][]string{{"lib"}}, builder.rebuilt())
}
