package bundler

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/leapstack-labs/multibuild/internal/importgraph"
	"github.com/leapstack-labs/multibuild/internal/resolve"
)

// metafile mirrors the parts of the esbuild metafile JSON we read.
type metafile struct {
	Inputs map[string]metafileInput `json:"inputs"`
}

type metafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []metafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

type metafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

func parseMetafile(raw string) (*metafile, error) {
	if raw == "" {
		return &metafile{}, nil
	}
	var m metafile
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metafile: %w", err)
	}
	return &m, nil
}

// inputs returns the bundled source files in sorted order.
func (m *metafile) inputs() []string {
	out := make([]string, 0, len(m.Inputs))
	for path := range m.Inputs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// graph builds the import graph of bundled (non-external) modules.
func (m *metafile) graph() *importgraph.Graph {
	g := importgraph.New()
	for path, in := range m.Inputs {
		g.AddNode(path)
		for _, imp := range in.Imports {
			if imp.External {
				continue
			}
			if _, bundled := m.Inputs[imp.Path]; !bundled {
				continue
			}
			g.AddEdge(path, imp.Path)
		}
	}
	return g
}

// cycleDiagnostics reports each import cycle as a circular-dependency diagnostic.
func (m *metafile) cycleDiagnostics() []resolve.Diagnostic {
	var diags []resolve.Diagnostic
	for _, cycle := range m.graph().Cycles() {
		diags = append(diags, resolve.Diagnostic{
			Code:    resolve.CodeCircularDependency,
			Message: "Circular dependency: " + importgraph.FormatCycle(cycle),
			File:    cycle[0],
		})
	}
	return diags
}
