package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/multibuild/internal/target"
)

func TestResolve_ServerRuntime(t *testing.T) {
	d := target.Descriptor{Format: target.FormatCommonJS, Compile: target.Bool(true), Target: "node 6"}

	in, out, err := Resolve("server-runtime", d, DefaultLayout())
	require.NoError(t, err)

	assert.Equal(t, "server-runtime", in.TargetID)
	assert.Equal(t, "./src/index.js", in.Entry)
	require.Len(t, in.Stages, 2)
	assert.Equal(t, StageResolve, in.Stages[0].Kind)
	assert.Equal(t, PlatformNode, in.Stages[0].Platform)

	transpile, ok := in.Stage(StageTranspile)
	require.True(t, ok)
	assert.Equal(t, "node 6", transpile.Target)
	assert.True(t, transpile.Loose)
	assert.False(t, transpile.PreserveModules)

	assert.Equal(t, "build/server-runtime/index.js", out.Path())
	assert.Equal(t, target.FormatCommonJS, out.Format)
	assert.True(t, out.Sourcemap)
	assert.Empty(t, out.GlobalName)
}

func TestResolve_CompileDefaultsOn(t *testing.T) {
	in, _, err := Resolve("x", target.Descriptor{Format: target.FormatCommonJS}, DefaultLayout())
	require.NoError(t, err)

	_, ok := in.Stage(StageTranspile)
	assert.True(t, ok, "unset compile must include the transpile stage")
}

func TestResolve_NoCompile(t *testing.T) {
	d := target.Descriptor{Format: target.FormatESModule, Compile: target.Bool(false), Target: "node 6"}
	in, _, err := Resolve("es", d, DefaultLayout())
	require.NoError(t, err)

	_, ok := in.Stage(StageTranspile)
	assert.False(t, ok)
	assert.Len(t, in.Stages, 1)
	assert.Equal(t, PlatformBrowser, in.Stages[0].Platform)
}

func TestResolve_GlobalAndOverrides(t *testing.T) {
	d := target.Descriptor{
		Format:   target.FormatIIFE,
		Global:   true,
		Name:     "index",
		Minify:   true,
		Src:      "./src/filled.js",
		Filename: "bundle.js",
		Target:   "last 2 major versions",
	}
	in, out, err := Resolve("browser-global", d, Layout{OutDir: "dist", Entry: "./lib/main.js"})
	require.NoError(t, err)

	assert.Equal(t, "./src/filled.js", in.Entry)
	assert.Equal(t, PlatformBrowser, in.Stages[0].Platform)
	assert.Equal(t, "dist/browser-global/bundle.js", out.Path())
	assert.Equal(t, "index", out.GlobalName)
}

func TestResolve_SharedFormatDistinctDirectories(t *testing.T) {
	d := target.Descriptor{Format: target.FormatCommonJS}
	_, a, err := Resolve("a", d, DefaultLayout())
	require.NoError(t, err)
	_, b, err := Resolve("b", d, DefaultLayout())
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir, b.Dir)
}

func TestResolve_RejectsGlobalWithoutName(t *testing.T) {
	_, _, err := Resolve("g", target.Descriptor{Format: target.FormatIIFE, Global: true}, DefaultLayout())
	require.Error(t, err)

	var cfgErr *target.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "g", cfgErr.TargetID)
}

func TestResolve_RejectsEmptyID(t *testing.T) {
	_, _, err := Resolve("", target.Descriptor{Format: target.FormatCommonJS}, DefaultLayout())
	assert.Error(t, err)
}

func TestResolve_Deterministic(t *testing.T) {
	d := target.Default()
	for _, e := range d.Entries() {
		in1, out1, err := Resolve(e.ID, e.Descriptor, DefaultLayout())
		require.NoError(t, err)
		in2, out2, err := Resolve(e.ID, e.Descriptor, DefaultLayout())
		require.NoError(t, err)

		assert.Equal(t, in1.Stages, in2.Stages, e.ID)
		assert.Equal(t, in1.Entry, in2.Entry, e.ID)
		assert.Equal(t, out1, out2, e.ID)
	}
}

func TestInputConfig_WithStageDoesNotAlias(t *testing.T) {
	in, _, err := Resolve("x", target.Descriptor{Format: target.FormatCommonJS}, DefaultLayout())
	require.NoError(t, err)

	minified := in.WithStage(Stage{Kind: StageMinify})
	assert.Len(t, in.Stages, 2)
	assert.Len(t, minified.Stages, 3)
	assert.Equal(t, StageMinify, minified.Stages[2].Kind)
}

func TestSuppressCircular(t *testing.T) {
	diags := []Diagnostic{
		{Code: CodeCircularDependency, Message: "Circular dependency: a.js -> b.js -> a.js"},
		{Code: "duplicate-object-key", Message: `Duplicate key "a" in object literal`},
	}

	kept := DiagnosticFilter(SuppressCircular).Apply(diags)
	require.Len(t, kept, 1)
	assert.Equal(t, "duplicate-object-key", kept[0].Code)

	assert.Len(t, DiagnosticFilter(nil).Apply(diags), 2)
}

func TestDiagnostic_String(t *testing.T) {
	assert.Equal(t, "(!) boom", Diagnostic{Message: "boom"}.String())
	assert.Equal(t, "(!) src/a.js:3: boom", Diagnostic{Message: "boom", File: "src/a.js", Line: 3}.String())
}
