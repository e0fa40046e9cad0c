package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Reporter prints diagnostics in either human-readable text or JSON lines and
// keeps track of how many errors were reported.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	fset     *token.FileSet
	errors   int
	warnings int
}

// NewReporter creates a reporter writing to w. format is "text" or "json";
// anything else falls back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// SetFileSet installs the file set used to resolve positions.
func (r *Reporter) SetFileSet(fset *token.FileSet) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fset = fset
}

// Error reports an error at pos.
func (r *Reporter) Error(pos token.Pos, msg string) {
	r.report(SeverityError, pos, msg)
}

// Errorf reports an error without a source position.
func (r *Reporter) Errorf(format string, args ...any) {
	r.report(SeverityError, token.NoPos, fmt.Sprintf(format, args...))
}

// Warning reports a non-fatal diagnostic at pos.
func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.report(SeverityWarning, pos, msg)
}

// Warningf reports a non-fatal diagnostic without a source position.
func (r *Reporter) Warningf(format string, args ...any) {
	r.report(SeverityWarning, token.NoPos, fmt.Sprintf(format, args...))
}

// Infof writes a progress note. Notes never count as errors.
func (r *Reporter) Infof(format string, args ...any) {
	r.report(SeverityNote, token.NoPos, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any error was reported.
func (r *Reporter) HasErrors() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// ErrorCount returns the number of reported errors.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// WarningCount returns the number of reported warnings.
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings
}

type jsonDiagnostic struct {
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

func (r *Reporter) report(sev Severity, pos token.Pos, msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch sev {
	case SeverityError:
		r.errors++
	case SeverityWarning:
		r.warnings++
	}

	var position token.Position
	if r.fset != nil && pos.IsValid() {
		position = r.fset.Position(pos)
	}

	if r.format == "json" {
		data, err := json.Marshal(jsonDiagnostic{
			Severity: sev.String(),
			File:     position.Filename,
			Line:     position.Line,
			Column:   position.Column,
			Message:  msg,
		})
		if err != nil {
			fmt.Fprintf(r.w, "{\"severity\":\"error\",\"message\":%q}\n", err.Error())
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}

	if position.IsValid() {
		fmt.Fprintf(r.w, "%s: %s: %s\n", position, sev, msg)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
}
