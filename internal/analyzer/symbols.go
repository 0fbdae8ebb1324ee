package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"tracecmd-collapse/internal/funcgraph"
)

// SortKey selects the ordering of a symbol report.
type SortKey string

const (
	SortByCount   SortKey = "count"
	SortByTime    SortKey = "time"
	SortByAvgTime SortKey = "avg_time"
)

// ParseSortKey validates a sort key name.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortByCount, SortByTime, SortByAvgTime:
		return k, nil
	}
	return "", fmt.Errorf("invalid sort key %q (want count, time or avg_time)", s)
}

// SymbolStats aggregates every completed call of one function.
type SymbolStats struct {
	Name      string
	Count     int
	TotalTime float64 // microseconds, summed over calls
	SelfTime  float64 // TotalTime minus time spent in direct callees
}

// AvgTime returns the mean call duration.
func (s SymbolStats) AvgTime() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / float64(s.Count)
}

type openCall struct {
	name      string
	childTime float64
}

// SymbolTable counts calls and durations per function from funcgraph
// records. It is independent of the latency threshold.
type SymbolTable struct {
	symbols map[string]*SymbolStats
	stack   []openCall
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*SymbolStats)}
}

// Add records one classified line. Non-call lines and exits with no open
// call are ignored.
func (t *SymbolTable) Add(line funcgraph.Line) {
	switch line.Kind {
	case funcgraph.KindEntryOpen:
		t.stack = append(t.stack, openCall{name: line.Name})
	case funcgraph.KindEntryLeaf:
		t.record(line.Name, line.Latency, line.Latency)
		t.chargeParent(line.Latency)
	case funcgraph.KindExit:
		if len(t.stack) == 0 {
			return
		}
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.record(top.name, line.Latency, line.Latency-top.childTime)
		t.chargeParent(line.Latency)
	}
}

func (t *SymbolTable) record(name string, total, self float64) {
	s, ok := t.symbols[name]
	if !ok {
		s = &SymbolStats{Name: name}
		t.symbols[name] = s
	}
	s.Count++
	s.TotalTime += total
	s.SelfTime += self
}

func (t *SymbolTable) chargeParent(latency float64) {
	if len(t.stack) == 0 {
		return
	}
	t.stack[len(t.stack)-1].childTime += latency
}

// Len returns the number of distinct functions seen.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// Lookup returns the stats for one function.
func (t *SymbolTable) Lookup(name string) (SymbolStats, bool) {
	s, ok := t.symbols[name]
	if !ok {
		return SymbolStats{}, false
	}
	return *s, true
}

// Sorted returns all symbols ordered by key, largest first; ties break on name.
func (t *SymbolTable) Sorted(key SortKey) []SymbolStats {
	out := make([]SymbolStats, 0, len(t.symbols))
	for _, s := range t.symbols {
		out = append(out, *s)
	}

	value := func(s SymbolStats) float64 {
		switch key {
		case SortByTime:
			return s.TotalTime
		case SortByAvgTime:
			return s.AvgTime()
		default:
			return float64(s.Count)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		vi, vj := value(out[i]), value(out[j])
		if vi != vj {
			return vi > vj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FormatSymbolReport renders symbols as a fixed-width table.
func FormatSymbolReport(symbols []SymbolStats, key SortKey) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("performance analysis (%s basis)\n", key))
	sb.WriteString(fmt.Sprintf("%-30s %-10s %-20s %-20s %-20s\n", "symbol name", "count", "time (us)", "time avg (us)", "self (us)"))
	for _, s := range symbols {
		sb.WriteString(fmt.Sprintf("%-30s %-10d %-20.5f %-20.5f %-20.5f\n", s.Name, s.Count, s.TotalTime, s.AvgTime(), s.SelfTime))
	}
	return sb.String()
}
