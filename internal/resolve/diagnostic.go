package resolve

import "fmt"

// CodeCircularDependency identifies import cycle diagnostics.
const CodeCircularDependency = "circular-dependency"

// Diagnostic is a non-fatal bundler warning.
type Diagnostic struct {
	Code    string
	Message string
	File    string
	Line    int
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("(!) %s", d.Message)
	}
	if d.Line > 0 {
		return fmt.Sprintf("(!) %s:%d: %s", d.File, d.Line, d.Message)
	}
	return fmt.Sprintf("(!) %s: %s", d.File, d.Message)
}

// DiagnosticFilter reports whether a diagnostic should reach the operator log.
type DiagnosticFilter func(Diagnostic) bool

// SuppressCircular drops circular-dependency diagnostics and passes everything else.
func SuppressCircular(d Diagnostic) bool {
	return d.Code != CodeCircularDependency
}

// Apply returns the diagnostics accepted by f. A nil filter accepts everything.
func (f DiagnosticFilter) Apply(diags []Diagnostic) []Diagnostic {
	if f == nil {
		return diags
	}
	var kept []Diagnostic
	for _, d := range diags {
		if f(d) {
			kept = append(kept, d)
		}
	}
	return kept
}
