package collapse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"tracecmd-collapse/internal/funcgraph"
)

// DefaultMinLatencyUS is the threshold used when none is configured.
const DefaultMinLatencyUS = 1000

// sentinelLine closes every root call tree in the buffer.
const sentinelLine = "dummy 0"

var (
	// ErrUnbalancedExit is returned in strict mode for an exit record seen
	// with no open call.
	ErrUnbalancedExit = errors.New("unbalanced exit")
	// ErrIncompleteTree is returned in strict mode when input ends inside a
	// call tree.
	ErrIncompleteTree = errors.New("incomplete call tree at end of input")
)

// Frame is one open call on the stack. Accumulated is the latency already
// attributed to this call's descendants.
type Frame struct {
	Name        string
	Accumulated float64
}

// Summary counts what an aggregator has seen.
type Summary struct {
	Lines      int // lines fed
	Trees      int // root call trees closed
	Emitted    int // trees written to the output
	Discarded  int // trees at or below the threshold
	Unknown    int // unrecognized lines
	Unbalanced int // exits with no open call
	OpenFrames int // frames still open when Finish was called
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDiagnostics routes diagnostics to sink. The default discards them.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(a *Aggregator) {
		a.diag = sink
	}
}

// WithStrict makes unbalanced exits and incomplete trailing trees errors
// instead of skipped input.
func WithStrict(strict bool) Option {
	return func(a *Aggregator) {
		a.strict = strict
	}
}

// WithGroupHook calls fn with every group written to the output, sentinel
// included. fn must not retain the slice.
func WithGroupHook(fn func(lines []string)) Option {
	return func(a *Aggregator) {
		a.hook = fn
	}
}

// Aggregator turns funcgraph report lines into collapsed stacks, one root
// call tree at a time. It is not safe for concurrent use.
type Aggregator struct {
	threshold int
	out       *bufio.Writer
	diag      DiagnosticSink
	strict    bool
	hook      func(lines []string)

	stack   []Frame
	buffer  []string
	summary Summary
}

// New returns an Aggregator that writes groups whose root latency is strictly
// greater than thresholdUS microseconds to w.
func New(thresholdUS int, w io.Writer, opts ...Option) *Aggregator {
	a := &Aggregator{
		threshold: thresholdUS,
		out:       bufio.NewWriter(w),
		diag:      Discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the minimum root latency in microseconds.
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Depth returns the number of open calls.
func (a *Aggregator) Depth() int {
	return len(a.stack)
}

// Pending returns a copy of the lines buffered for the current tree.
func (a *Aggregator) Pending() []string {
	return append([]string(nil), a.buffer...)
}

// Feed processes one report line.
func (a *Aggregator) Feed(raw string) error {
	a.summary.Lines++
	line := funcgraph.Classify(raw)

	switch line.Kind {
	case funcgraph.KindEntryOpen:
		a.stack = append(a.stack, Frame{Name: line.Name})
	case funcgraph.KindEntryLeaf:
		a.attribute(line.Name, line.Latency)
	case funcgraph.KindExit:
		return a.exit(line)
	case funcgraph.KindIgnorable:
	default:
		a.summary.Unknown++
		a.diag.Diagnose(Diagnostic{Kind: DiagUnknownLine, Line: line.Raw})
	}
	return nil
}

func (a *Aggregator) exit(line funcgraph.Line) error {
	if len(a.stack) == 0 {
		a.summary.Unbalanced++
		if a.strict {
			return fmt.Errorf("%w: %s", ErrUnbalancedExit, line.Raw)
		}
		a.diag.Diagnose(Diagnostic{Kind: DiagUnbalancedExit, Line: line.Raw})
		return nil
	}

	top := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	a.attribute(top.Name, line.Latency-top.Accumulated)

	if len(a.stack) > 0 {
		return nil
	}

	a.buffer = append(a.buffer, sentinelLine)
	a.summary.Trees++
	var err error
	if line.Latency > float64(a.threshold) {
		a.summary.Emitted++
		err = a.emit()
	} else {
		a.summary.Discarded++
	}
	a.buffer = a.buffer[:0]
	return err
}

// attribute records latency for the open stack plus name and charges it to
// every open frame.
func (a *Aggregator) attribute(name string, latency float64) {
	a.buffer = append(a.buffer, a.chain(name)+" "+FormatLatency(latency))
	for i, f := range a.stack {
		a.stack[i] = Frame{Name: f.Name, Accumulated: f.Accumulated + latency}
	}
}

func (a *Aggregator) chain(name string) string {
	var sb strings.Builder
	for _, f := range a.stack {
		sb.WriteString(f.Name)
		sb.WriteByte(';')
	}
	sb.WriteString(name)
	return sb.String()
}

func (a *Aggregator) emit() error {
	for _, l := range a.buffer {
		if _, err := a.out.WriteString(l); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := a.out.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if a.hook != nil {
		a.hook(a.buffer)
	}
	return nil
}

// Finish flushes the output and reports what was processed. A tree still
// open at this point is dropped without being written.
func (a *Aggregator) Finish() (Summary, error) {
	a.summary.OpenFrames = len(a.stack)
	if err := a.out.Flush(); err != nil {
		return a.summary, fmt.Errorf("flush output: %w", err)
	}
	if a.strict && len(a.stack) > 0 {
		return a.summary, fmt.Errorf("%w: %d open calls, innermost %s",
			ErrIncompleteTree, len(a.stack), a.stack[len(a.stack)-1].Name)
	}
	return a.summary, nil
}
