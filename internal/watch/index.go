// Package watch rebuilds targets when their source files change.
package watch

import (
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/multibuild/internal/importgraph"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
)

const targetPrefix = "target:"

// Index maps source files to the targets that bundled them, using the
// inputs recorded by the last build of each target.
type Index struct {
	mu     sync.Mutex
	inputs map[string][]string // target -> project-relative inputs
	stale  map[string]bool     // targets without a successful build
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{inputs: make(map[string][]string), stale: make(map[string]bool)}
}

// Update records the outcomes of rep. Failed targets are marked stale and
// rebuilt on the next change of any file.
func (x *Index) Update(rep *orchestrator.Report) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, o := range rep.Outcomes() {
		if o.Failed() || o.Primary == nil {
			delete(x.inputs, o.TargetID)
			x.stale[o.TargetID] = true
			continue
		}
		x.inputs[o.TargetID] = o.Inputs()
		delete(x.stale, o.TargetID)
	}
}

// Targets returns the targets affected by the changed project-relative
// paths, sorted.
func (x *Index) Targets(changed []string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	g := importgraph.New()
	for id, inputs := range x.inputs {
		for _, in := range inputs {
			g.AddEdge(targetPrefix+id, in)
		}
	}

	set := make(map[string]bool)
	for _, node := range g.Affected(changed) {
		if id, ok := strings.CutPrefix(node, targetPrefix); ok {
			set[id] = true
		}
	}
	if len(changed) > 0 {
		for id := range x.stale {
			set[id] = true
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
