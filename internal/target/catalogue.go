package target

import (
	"errors"
	"fmt"
	"sort"
)

// Identifiers of the built-in catalogue.
const (
	ServerRuntime             = "server-runtime"
	BrowserCommonJS           = "browser-commonjs"
	ECMAScriptModule          = "ecmascript-module"
	BrowserLoaderModule       = "browser-loader-module"
	BrowserLoaderModuleFilled = "browser-loader-module-filled"
	BrowserGlobal             = "browser-global"
	BrowserGlobalUntranspiled = "browser-global-untranspiled"
	BrowserGlobalFilled       = "browser-global-filled"
)

// Compatibility targets used by the built-in catalogue.
const (
	ServerRuntimeCompat = "node 6"
	BrowsersCompat      = "last 2 major versions"
)

// LibraryName is the export/global identifier of the built-in catalogue.
const LibraryName = "index"

// DefaultEntry is the canonical library entry point.
const DefaultEntry = "./src/index.js"

// Entry pairs a target identifier with its descriptor.
type Entry struct {
	ID         string     `json:"id" yaml:"id"`
	Descriptor Descriptor `json:"descriptor" yaml:"descriptor"`
}

// Catalogue is an ordered, immutable table of named targets.
type Catalogue struct {
	order   []string
	entries map[string]Descriptor
}

// NewCatalogue builds a catalogue from entries. Duplicate identifiers are rejected.
func NewCatalogue(entries ...Entry) (*Catalogue, error) {
	c := &Catalogue{entries: make(map[string]Descriptor, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("catalogue entry with empty id")
		}
		if _, dup := c.entries[e.ID]; dup {
			return nil, fmt.Errorf("duplicate target %q in catalogue", e.ID)
		}
		c.order = append(c.order, e.ID)
		c.entries[e.ID] = e.Descriptor
	}
	return c, nil
}

// Default returns the built-in catalogue of library builds.
func Default() *Catalogue {
	c, err := NewCatalogue(
		Entry{ID: ServerRuntime, Descriptor: Descriptor{
			Format: FormatCommonJS,
			Target: ServerRuntimeCompat,
		}},
		Entry{ID: BrowserCommonJS, Descriptor: Descriptor{
			Format: FormatCommonJS,
			Target: BrowsersCompat,
		}},
		Entry{ID: ECMAScriptModule, Descriptor: Descriptor{
			Format:  FormatESModule,
			Compile: Bool(false),
		}},
		Entry{ID: BrowserLoaderModule, Descriptor: Descriptor{
			Format: FormatAMD,
			Name:   LibraryName,
			Target: BrowsersCompat,
			Minify: true,
		}},
		Entry{ID: BrowserLoaderModuleFilled, Descriptor: Descriptor{
			Format: FormatAMD,
			Name:   LibraryName,
			Target: BrowsersCompat,
			Src:    DefaultEntry,
			Minify: true,
		}},
		Entry{ID: BrowserGlobal, Descriptor: Descriptor{
			Format: FormatIIFE,
			Global: true,
			Name:   LibraryName,
			Target: BrowsersCompat,
			Minify: true,
		}},
		Entry{ID: BrowserGlobalUntranspiled, Descriptor: Descriptor{
			Format:  FormatIIFE,
			Global:  true,
			Name:    LibraryName,
			Compile: Bool(false),
		}},
		Entry{ID: BrowserGlobalFilled, Descriptor: Descriptor{
			Format: FormatIIFE,
			Global: true,
			Name:   LibraryName,
			Target: BrowsersCompat,
			Src:    DefaultEntry,
			Minify: true,
		}},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// IDs returns target identifiers in catalogue order.
func (c *Catalogue) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Len returns the number of targets.
func (c *Catalogue) Len() int {
	return len(c.order)
}

// Lookup returns the descriptor registered under id.
func (c *Catalogue) Lookup(id string) (Descriptor, bool) {
	d, ok := c.entries[id]
	return d, ok
}

// Entries returns all entries in catalogue order.
func (c *Catalogue) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Entry{ID: id, Descriptor: c.entries[id]})
	}
	return out
}

// With returns a new catalogue where overrides replace existing descriptors
// and unknown identifiers are appended in sorted order.
func (c *Catalogue) With(overrides map[string]Descriptor) *Catalogue {
	next := &Catalogue{
		order:   c.IDs(),
		entries: make(map[string]Descriptor, len(c.entries)+len(overrides)),
	}
	for id, d := range c.entries {
		next.entries[id] = d
	}

	added := make([]string, 0, len(overrides))
	for id, d := range overrides {
		if _, exists := next.entries[id]; !exists {
			added = append(added, id)
		}
		next.entries[id] = d
	}
	sort.Strings(added)
	next.order = append(next.order, added...)
	return next
}

// Validate checks every descriptor and joins all violations.
func (c *Catalogue) Validate() error {
	var errs []error
	for _, id := range c.order {
		if err := c.entries[id].Validate(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
