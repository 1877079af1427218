package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/metrics"
	"github.com/leapstack-labs/multibuild/internal/minify"
	"github.com/leapstack-labs/multibuild/internal/resolve"
	"github.com/leapstack-labs/multibuild/internal/target"
	"github.com/leapstack-labs/multibuild/internal/testutil"
)

// fakeBundler emits a fixed body per output and records every call.
type fakeBundler struct {
	root string

	mu    sync.Mutex
	calls []resolve.OutputConfig
	fail  map[string]error // keyed by output filename
}

func (f *fakeBundler) Bundle(_ context.Context, in resolve.InputConfig, out resolve.OutputConfig) (*bundler.Bundle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, out)
	err := f.fail[out.Filename]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &bundler.Bundle{
		TargetID: in.TargetID,
		Root:     f.root,
		Code:     bundler.File{Path: out.Path(), Contents: []byte("// " + out.Filename + "\nvar index = 1;\n")},
		Map:      &bundler.File{Path: out.Path() + ".map", Contents: []byte(`{"version":3}`)},
		Inputs:   []string{"src/index.js"},
	}, nil
}

func (f *fakeBundler) filenames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Filename
	}
	return names
}

// fakeMinifier checks the primary artifact is on disk when it is called.
type fakeMinifier struct {
	root    string
	err     error
	sawCode string
	opts    minify.Options
}

func (f *fakeMinifier) Minify(_ context.Context, code string, opts minify.Options) (*minify.Result, error) {
	f.sawCode = code
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &minify.Result{Code: []byte("var index=1;\n"), Map: []byte(`{"version":3,"mappings":""}`)}, nil
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu             sync.Mutex
	outcomes       map[string]metrics.Outcome
	minifyFailures int
}

func (r *countingRecorder) IncTargetOutcome(id string, o metrics.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]metrics.Outcome{}
	}
	r.outcomes[id] = o
}

func (r *countingRecorder) IncMinifyFailure(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minifyFailures++
}

func globalDescriptor() target.Descriptor {
	return target.Descriptor{
		Format: target.FormatIIFE,
		Global: true,
		Name:   target.LibraryName,
		Target: target.BrowsersCompat,
		Minify: true,
	}
}

func TestNewJob_RequiresDependencies(t *testing.T) {
	_, err := NewJob(Config{})
	require.Error(t, err)

	_, err = NewJob(Config{Bundler: &fakeBundler{}})
	require.Error(t, err, "fallback needs a minifier")

	job, err := NewJob(Config{Bundler: &fakeBundler{}, Strategy: StrategyIntegrated})
	require.NoError(t, err)
	assert.Equal(t, StrategyIntegrated, job.Strategy())

	_, err = NewJob(Config{Bundler: &fakeBundler{}, Minifier: &fakeMinifier{}, Strategy: "bogus"})
	require.Error(t, err)
}

func TestJob_FallbackMinifiesWrittenArtifact(t *testing.T) {
	root := t.TempDir()
	b := &fakeBundler{root: root}
	m := &fakeMinifier{root: root}
	rec := &countingRecorder{}

	job, err := NewJob(Config{Bundler: b, Minifier: m, Recorder: rec, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
	require.NoError(t, o.Err)
	require.NoError(t, o.MinifyErr)
	assert.Equal(t, StatusSuccess, o.Status)
	assert.False(t, o.Failed())

	// The bundler runs once; the minifier consumes what it wrote.
	assert.Equal(t, []string{target.DefaultFilename}, b.filenames())
	assert.Contains(t, m.sawCode, "// index.js")
	assert.True(t, m.opts.PreserveTopLevelNames)
	assert.True(t, m.opts.StripComments)
	assert.Equal(t, "index.js", m.opts.SourceMapFilenameHint)
	assert.Equal(t, target.BrowsersCompat, m.opts.Target)
	assert.Equal(t, target.FormatIIFE, m.opts.Format)

	require.NotNil(t, o.Minified)
	assert.Equal(t, filepath.Join(root, "build", target.BrowserGlobal, target.MinFilename), o.Minified.CodePath)
	min := testutil.ReadFile(t, root, "build/browser-global/index.min.js")
	assert.True(t, strings.HasSuffix(min, "//# sourceMappingURL=index.min.js.map\n"))
	assert.True(t, testutil.Exists(root, "build/browser-global/index.min.js.map"))
	assert.Len(t, o.Artifacts(), 2)
	assert.Equal(t, metrics.OutcomeSuccess, rec.outcomes[target.BrowserGlobal])
}

func TestJob_NoMinifyWritesOnlyPrimary(t *testing.T) {
	root := t.TempDir()
	m := &fakeMinifier{}
	job, err := NewJob(Config{Bundler: &fakeBundler{root: root}, Minifier: m})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.ServerRuntime, target.Descriptor{
		Format: target.FormatCommonJS,
		Target: target.ServerRuntimeCompat,
	})
	require.NoError(t, o.Err)
	assert.Nil(t, o.Minified)
	assert.Empty(t, m.sawCode)
	assert.True(t, testutil.Exists(root, "build/server-runtime/index.js"))
	assert.False(t, testutil.Exists(root, "build/server-runtime/index.min.js"))
}

func TestJob_MinifyFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	rec := &countingRecorder{}
	logs, logger := testutil.NewLogRecorder()

	job, err := NewJob(Config{
		Bundler:  &fakeBundler{root: root},
		Minifier: &fakeMinifier{err: errors.New("unexpected token")},
		Recorder: rec,
		Logger:   logger,
	})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
	require.NoError(t, o.Err)
	assert.Equal(t, StatusSuccess, o.Status)
	require.Error(t, o.MinifyErr)

	var me *minify.MinifyError
	require.ErrorAs(t, o.MinifyErr, &me)
	assert.Equal(t, target.BrowserGlobal, me.TargetID)

	assert.NotNil(t, o.Primary)
	assert.Nil(t, o.Minified)
	assert.True(t, testutil.Exists(root, "build/browser-global/index.js"))
	assert.False(t, testutil.Exists(root, "build/browser-global/index.min.js"))
	assert.Equal(t, 1, rec.minifyFailures)
	assert.Equal(t, metrics.OutcomeSuccess, rec.outcomes[target.BrowserGlobal])

	errs := logs.AtLevel(slog.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "minify failed", errs[0].Message)
	assert.Equal(t, target.BrowserGlobal, errs[0].Attrs["target"])
}

func TestJob_BundleFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	b := &fakeBundler{root: root, fail: map[string]error{target.DefaultFilename: errors.New("could not resolve ./missing")}}
	m := &fakeMinifier{}
	rec := &countingRecorder{}

	job, err := NewJob(Config{Bundler: b, Minifier: m, Recorder: rec})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
	assert.True(t, o.Failed())

	var be *bundler.BundleError
	require.ErrorAs(t, o.Err, &be)
	assert.Equal(t, target.BrowserGlobal, be.TargetID)
	assert.Empty(t, m.sawCode, "minify never runs without a primary artifact")
	assert.Equal(t, metrics.OutcomeFailed, rec.outcomes[target.BrowserGlobal])
}

func TestJob_InvalidDescriptorSkipsBundler(t *testing.T) {
	b := &fakeBundler{root: t.TempDir()}
	job, err := NewJob(Config{Bundler: b, Minifier: &fakeMinifier{}})
	require.NoError(t, err)

	o := job.Run(context.Background(), "broken", target.Descriptor{Format: target.FormatIIFE, Global: true})
	assert.True(t, o.Failed())

	var ce *target.ConfigurationError
	require.ErrorAs(t, o.Err, &ce)
	assert.Equal(t, "broken", ce.TargetID)
	assert.Empty(t, b.filenames())
}

func TestJob_IntegratedRunsBothBundles(t *testing.T) {
	root := t.TempDir()
	b := &fakeBundler{root: root}
	job, err := NewJob(Config{Bundler: b, Strategy: StrategyIntegrated})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
	require.NoError(t, o.Err)
	require.NoError(t, o.MinifyErr)
	assert.ElementsMatch(t, []string{target.DefaultFilename, target.MinFilename}, b.filenames())
	assert.True(t, testutil.Exists(root, "build/browser-global/index.min.js"))
}

func TestJob_IntegratedMinifyFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	b := &fakeBundler{root: root, fail: map[string]error{target.MinFilename: errors.New("mangle failed")}}
	job, err := NewJob(Config{Bundler: b, Strategy: StrategyIntegrated})
	require.NoError(t, err)

	o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
	require.NoError(t, o.Err)
	assert.Equal(t, StatusSuccess, o.Status)
	var me *minify.MinifyError
	require.ErrorAs(t, o.MinifyErr, &me)
	assert.True(t, testutil.Exists(root, "build/browser-global/index.js"))
}

func TestMinifyTarget(t *testing.T) {
	assert.Equal(t, "", minifyTarget(target.Descriptor{Compile: target.Bool(false), Target: "es2020"}))
	assert.Equal(t, "es2015", minifyTarget(target.Descriptor{}))
	assert.Equal(t, "node 6", minifyTarget(target.Descriptor{Target: "node 6"}))
}

func TestJob_ESBuild(t *testing.T) {
	root := testutil.WriteLibrary(t)
	b, err := bundler.NewESBuild(root, testutil.NewTestLogger(t))
	require.NoError(t, err)

	job, err := NewJob(Config{Bundler: b, Minifier: minify.NewESBuild(), Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	t.Run("server runtime", func(t *testing.T) {
		o := job.Run(context.Background(), target.ServerRuntime, target.Descriptor{
			Format: target.FormatCommonJS,
			Target: target.ServerRuntimeCompat,
		})
		require.NoError(t, o.Err)
		code := testutil.ReadFile(t, root, "build/server-runtime/index.js")
		assert.Contains(t, code, "module.exports")
		assert.True(t, testutil.Exists(root, "build/server-runtime/index.js.map"))
		assert.False(t, testutil.Exists(root, "build/server-runtime/index.min.js"))
	})

	t.Run("browser global", func(t *testing.T) {
		o := job.Run(context.Background(), target.BrowserGlobal, globalDescriptor())
		require.NoError(t, o.Err)
		require.NoError(t, o.MinifyErr)

		code := testutil.ReadFile(t, root, "build/browser-global/index.js")
		assert.Contains(t, code, "var index =")

		min := testutil.ReadFile(t, root, "build/browser-global/index.min.js")
		assert.Contains(t, min, "var index=")
		assert.NotContains(t, min, "internalMessageValue")
		assert.Less(t, len(min), len(code))
		assert.True(t, testutil.Exists(root, "build/browser-global/index.min.js.map"))
	})
}

func TestJob_ESBuildMinifiedKeepsExports(t *testing.T) {
	amd, ok := target.Default().Lookup(target.BrowserLoaderModule)
	require.True(t, ok)

	tests := []struct {
		id   string
		desc target.Descriptor
		// present and absent are checked on index.min.js.
		present []string
		absent  []string
	}{
		{
			id:      "commonjs-min",
			desc:    target.Descriptor{Format: target.FormatCommonJS, Target: target.ServerRuntimeCompat, Minify: true},
			present: []string{"module.exports"},
			absent:  []string{"export default", "export{", "__commonJS"},
		},
		{
			id:      target.BrowserLoaderModule,
			desc:    amd,
			present: []string{"define(function(){"},
			absent:  []string{"export default", "export{", "internalMessageValue"},
		},
		{
			id:      target.BrowserGlobal,
			desc:    globalDescriptor(),
			present: []string{"var index="},
			absent:  []string{"export default", "internalMessageValue"},
		},
	}

	root := testutil.WriteLibrary(t)
	b, err := bundler.NewESBuild(root, testutil.NewTestLogger(t))
	require.NoError(t, err)
	job, err := NewJob(Config{Bundler: b, Minifier: minify.NewESBuild(), Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			o := job.Run(context.Background(), tt.id, tt.desc)
			require.NoError(t, o.Err)
			require.NoError(t, o.MinifyErr)
			require.NotNil(t, o.Minified)

			min := testutil.ReadFile(t, root, "build/"+tt.id+"/index.min.js")
			for _, want := range tt.present {
				assert.Contains(t, min, want)
			}
			for _, unwanted := range tt.absent {
				assert.NotContains(t, min, unwanted)
			}

			primary := loadModule(t, o.Primary.CodePath, tt.desc)
			assert.Equal(t, `[["greet","version"],"HELLO X!"]`, primary)
			assert.Equal(t, primary, loadModule(t, o.Minified.CodePath, tt.desc), "minified build must expose the same members")
		})
	}
}

// loadModule evaluates a built file with node the way its consumers would
// and returns its sorted export keys and the result of greet("x") as JSON.
func loadModule(t *testing.T, path string, d target.Descriptor) string {
	t.Helper()
	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node not available")
	}

	var load string
	switch d.Format {
	case target.FormatCommonJS:
		load = `const m = require(process.argv[1]);`
	case target.FormatAMD:
		load = `let m; globalThis.define = (factory) => { m = factory(); }; require(process.argv[1]);`
	case target.FormatIIFE:
		load = `require("vm").runInThisContext(require("fs").readFileSync(process.argv[1], "utf8")); const m = globalThis[process.argv[2]];`
	default:
		t.Fatalf("cannot load format %q", d.Format)
	}
	script := load + ` console.log(JSON.stringify([Object.keys(m).sort(), m.greet("x")]));`

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, node, "-e", script, path, d.Name).CombinedOutput()
	require.NoError(t, err, "node failed: %s", out)
	return strings.TrimSpace(string(out))
}

func TestJob_CanceledContext(t *testing.T) {
	root := testutil.WriteLibrary(t)
	b, err := bundler.NewESBuild(root, nil)
	require.NoError(t, err)
	job, err := NewJob(Config{Bundler: b, Minifier: minify.NewESBuild()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := job.Run(ctx, target.ServerRuntime, target.Descriptor{Format: target.FormatCommonJS})
	require.Error(t, o.Err)
	assert.ErrorIs(t, o.Err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(root, "build"))
	assert.True(t, os.IsNotExist(statErr))
}
