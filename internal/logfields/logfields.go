// Package logfields keeps slog attribute keys consistent across packages.
package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names.
const (
	KeyTarget     = "target"
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyStrategy   = "strategy"
	KeyPath       = "path"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyCode       = "code"
	KeyCount      = "count"
	KeyError      = "error"
)

func Target(id string) slog.Attr      { return slog.String(KeyTarget, id) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Strategy(name string) slog.Attr  { return slog.String(KeyStrategy, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Code(c string) slog.Attr         { return slog.String(KeyCode, c) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(KeyDurationMS, d.Milliseconds())
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
