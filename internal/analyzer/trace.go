package analyzer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tracecmd-collapse/internal/collapse"
	"tracecmd-collapse/internal/funcgraph"
)

// maxKeptDiagnostics bounds the diagnostics retained per trace.
const maxKeptDiagnostics = 20

// TraceData holds everything derived from one funcgraph report.
type TraceData struct {
	Path        string
	ThresholdUS int
	Collapsed   string            // the collapsed-stack output, as printed
	Samples     []collapse.Sample // Collapsed, parsed; sentinels included
	Symbols     *SymbolTable      // per-function totals, independent of the threshold
	Summary     collapse.Summary
	Diagnostics []collapse.Diagnostic // the first diagnostics encountered
}

// LoadTrace reads a trace-cmd report and collapses it with the given
// threshold.
func LoadTrace(ctx context.Context, path string, thresholdUS int) (*TraceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	data := &TraceData{
		Path:        path,
		ThresholdUS: thresholdUS,
		Symbols:     NewSymbolTable(),
	}

	var out strings.Builder
	var hookErr error
	agg := collapse.New(thresholdUS, &out,
		collapse.WithDiagnostics(collapse.DiagnosticFunc(func(d collapse.Diagnostic) {
			if len(data.Diagnostics) < maxKeptDiagnostics {
				data.Diagnostics = append(data.Diagnostics, d)
			}
		})),
		collapse.WithGroupHook(func(lines []string) {
			samples, err := collapse.ParseSamples(lines)
			if err != nil {
				hookErr = err
				return
			}
			data.Samples = append(data.Samples, samples...)
		}),
	)

	scanner := funcgraph.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := scanner.Text()
		if err := agg.Feed(text); err != nil {
			return nil, err
		}
		data.Symbols.Add(funcgraph.Classify(text))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading trace: %w", err)
	}

	summary, err := agg.Finish()
	if err != nil {
		return nil, err
	}
	if hookErr != nil {
		return nil, fmt.Errorf("failed to parse collapsed output: %w", hookErr)
	}

	data.Summary = summary
	data.Collapsed = out.String()
	return data, nil
}
