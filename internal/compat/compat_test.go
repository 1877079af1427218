package compat

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		target  api.Target
		engines []api.Engine
	}{
		{name: "empty", in: "", target: api.ES2015},
		{name: "node with space", in: "node 6", engines: []api.Engine{{Name: api.EngineNode, Version: "6"}}},
		{name: "node compact", in: "node6", engines: []api.Engine{{Name: api.EngineNode, Version: "6"}}},
		{name: "node range", in: "node >= 8.3", engines: []api.Engine{{Name: api.EngineNode, Version: "8.3"}}},
		{name: "language level", in: "ES2017", target: api.ES2017},
		{name: "es6 alias", in: "es6", target: api.ES2015},
		{name: "browser list", in: "chrome 58, firefox 57, safari 11", engines: []api.Engine{
			{Name: api.EngineChrome, Version: "58"},
			{Name: api.EngineFirefox, Version: "57"},
			{Name: api.EngineSafari, Version: "11"},
		}},
		{name: "browserslist query", in: "last 2 major versions", target: QueryFallback},
		{name: "mixed query and engine", in: "defaults, node 10", engines: []api.Engine{{Name: api.EngineNode, Version: "10"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Target)
			assert.Equal(t, tt.engines, got.Engines)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("node")
	assert.ErrorContains(t, err, "needs a version")

	_, err = Parse("es2015, es2017")
	assert.ErrorContains(t, err, "more than one language level")
}

func TestSettings_IsNode(t *testing.T) {
	s, err := Parse("node 6")
	require.NoError(t, err)
	assert.True(t, s.IsNode())

	s, err = Parse("node 6, chrome 58")
	require.NoError(t, err)
	assert.False(t, s.IsNode())

	assert.False(t, Passthrough().IsNode())
}
