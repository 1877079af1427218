package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Valid option values.
var (
	LogFormats   = []string{"text", "json"}
	OutputModes  = []string{"auto", "table", "json", "yaml"}
	Aggregations = []string{"settle-all", "fail-fast"}
)

// Validate checks option values and joins every violation.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.LogFormat, LogFormats) {
		errs = append(errs, fmt.Errorf("log_format must be one of %s, got %q", strings.Join(LogFormats, ", "), c.LogFormat))
	}
	if !oneOf(c.Output, OutputModes) {
		errs = append(errs, fmt.Errorf("output must be one of %s, got %q", strings.Join(OutputModes, ", "), c.Output))
	}
	if !oneOf(c.Aggregation, Aggregations) {
		errs = append(errs, fmt.Errorf("aggregation must be one of %s, got %q", strings.Join(Aggregations, ", "), c.Aggregation))
	}
	if c.OutDir == "" {
		errs = append(errs, errors.New("out_dir is required"))
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}
	if c.Serve.Addr == "" {
		errs = append(errs, errors.New("serve.addr is required"))
	}
	return errors.Join(errs...)
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s)
	}
	return level, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
