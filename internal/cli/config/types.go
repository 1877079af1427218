// Package config loads multibuild settings from defaults, a project file,
// MULTIBUILD_ environment variables and command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/multibuild/internal/target"
)

// Default configuration values.
const (
	DefaultOutDir      = "build"
	DefaultHistoryPath = ".multibuild/history.db"
	DefaultAggregation = "settle-all"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultOutput      = "auto"
	DefaultDebounce    = 100 * time.Millisecond
	DefaultServeAddr   = "127.0.0.1:8080"

	// HistoryOff disables the history store.
	HistoryOff = "off"
)

// ConfigFileNames are searched for in the project root, in order.
var ConfigFileNames = []string{"multibuild.yaml", "multibuild.yml"}

// Config holds all CLI configuration options.
type Config struct {
	Root        string                  `koanf:"root"`
	Entry       string                  `koanf:"entry"`
	OutDir      string                  `koanf:"out_dir"`
	TrustMinify bool                    `koanf:"trust_minify"`
	Aggregation string                  `koanf:"aggregation"`
	HistoryPath string                  `koanf:"history_path"`
	MetricsFile string                  `koanf:"metrics_file"`
	LogLevel    string                  `koanf:"log_level"`
	LogFormat   string                  `koanf:"log_format"`
	Output      string                  `koanf:"output"`
	Watch       WatchConfig             `koanf:"watch"`
	Serve       ServeConfig             `koanf:"serve"`
	Targets     map[string]TargetConfig `koanf:"targets"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// ServeConfig configures the dev server.
type ServeConfig struct {
	Addr string `koanf:"addr"`
}

// TargetConfig overrides fields of a catalogue target, or declares a new
// one. Unset fields keep the catalogue value.
type TargetConfig struct {
	Format   *string `koanf:"format"`
	Compile  *bool   `koanf:"compile"`
	Minify   *bool   `koanf:"minify"`
	Global   *bool   `koanf:"global"`
	Name     *string `koanf:"name"`
	Src      *string `koanf:"src"`
	Filename *string `koanf:"filename"`
	Target   *string `koanf:"target"`
}

// Apply returns base with the set fields of tc applied.
func (tc TargetConfig) Apply(base target.Descriptor) (target.Descriptor, error) {
	d := base
	if tc.Format != nil {
		f, err := target.ParseFormat(*tc.Format)
		if err != nil {
			return d, err
		}
		d.Format = f
	}
	if tc.Compile != nil {
		d.Compile = target.Bool(*tc.Compile)
	}
	if tc.Minify != nil {
		d.Minify = *tc.Minify
	}
	if tc.Global != nil {
		d.Global = *tc.Global
	}
	if tc.Name != nil {
		d.Name = *tc.Name
	}
	if tc.Src != nil {
		d.Src = *tc.Src
	}
	if tc.Filename != nil {
		d.Filename = *tc.Filename
	}
	if tc.Target != nil {
		d.Target = *tc.Target
	}
	return d, nil
}

// HistoryEnabled reports whether runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryPath != "" && c.HistoryPath != HistoryOff
}
