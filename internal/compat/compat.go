// Package compat maps runtime compatibility identifiers ("node 6",
// "chrome 58, firefox 57", "es2017", "last 2 major versions") onto esbuild
// language targets and engine lists.
package compat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Settings is the esbuild view of a compatibility identifier.
type Settings struct {
	Target  api.Target
	Engines []api.Engine
}

// QueryFallback is the language level used for browserslist-style queries,
// which esbuild cannot evaluate.
const QueryFallback = api.ES2015

var languageLevels = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var engineNames = map[string]api.EngineName{
	"node":    api.EngineNode,
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"ios_saf": api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
	"deno":    api.EngineDeno,
}

// "node 6", "node6", "node >= 8.3"
var engineQuery = regexp.MustCompile(`^([a-z_]+)\s*(?:>=\s*)?v?(\d+(?:\.\d+){0,2})$`)

// Passthrough leaves syntax untouched.
func Passthrough() Settings {
	return Settings{Target: api.ESNext}
}

// Parse interprets a comma-separated compatibility identifier. An empty
// string selects ES2015.
func Parse(s string) (Settings, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Settings{Target: api.ES2015}, nil
	}

	var out Settings
	queries := 0
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if level, ok := languageLevels[part]; ok {
			if out.Target != api.DefaultTarget {
				return Settings{}, fmt.Errorf("compat target %q: more than one language level", s)
			}
			out.Target = level
			continue
		}

		if m := engineQuery.FindStringSubmatch(part); m != nil {
			if name, ok := engineNames[m[1]]; ok {
				out.Engines = append(out.Engines, api.Engine{Name: name, Version: m[2]})
				continue
			}
		}

		if _, ok := engineNames[part]; ok {
			return Settings{}, fmt.Errorf("compat target %q: engine %q needs a version", s, part)
		}

		// Anything else is treated as a browserslist query.
		queries++
	}

	if queries > 0 && out.Target == api.DefaultTarget && len(out.Engines) == 0 {
		out.Target = QueryFallback
	}
	if out.Target == api.DefaultTarget && len(out.Engines) == 0 {
		out.Target = api.ES2015
	}
	return out, nil
}

// IsNode reports whether the settings only describe node engines.
func (s Settings) IsNode() bool {
	if len(s.Engines) == 0 {
		return false
	}
	for _, e := range s.Engines {
		if e.Name != api.EngineNode {
			return false
		}
	}
	return true
}
