package collapse

import (
	"fmt"
	"io"
)

// DiagnosticKind classifies a non-fatal problem found in the input.
type DiagnosticKind int

const (
	// DiagUnknownLine is a line matching no known record shape.
	DiagUnknownLine DiagnosticKind = iota
	// DiagUnbalancedExit is an exit record seen while no call is open.
	DiagUnbalancedExit
)

// Diagnostic describes one skipped input line.
type Diagnostic struct {
	Kind DiagnosticKind
	Line string
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagUnbalancedExit:
		return "unbalanced exit: " + d.Line
	default:
		return "unknown line: " + d.Line
	}
}

// DiagnosticSink receives diagnostics as they are found.
type DiagnosticSink interface {
	Diagnose(d Diagnostic)
}

// DiagnosticFunc adapts a function to a DiagnosticSink.
type DiagnosticFunc func(d Diagnostic)

// Diagnose calls f(d).
func (f DiagnosticFunc) Diagnose(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard DiagnosticSink = DiagnosticFunc(func(Diagnostic) {})

// WriterSink writes each diagnostic as one text line to w. Write errors are
// ignored; diagnostics never affect the run.
func WriterSink(w io.Writer) DiagnosticSink {
	return DiagnosticFunc(func(d Diagnostic) {
		fmt.Fprintln(w, d.String())
	})
}
