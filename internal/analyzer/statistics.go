package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"tracecmd-collapse/internal/collapse"
)

// ProfileStatistics contains comprehensive statistics about collapsed samples
type ProfileStatistics struct {
	TotalTime         float64
	TotalSamples      int
	TotalGroups       int
	AverageStackDepth float64
	MaxStackDepth     int
	MinStackDepth     int
	UniqueStacks      int
	UniqueFunctions   int
}

// ComputeStatistics calculates statistics over collapsed samples. Sentinel
// lines are counted as group boundaries, not samples.
func ComputeStatistics(samples []collapse.Sample) ProfileStatistics {
	stats := ProfileStatistics{}

	totalDepth := 0
	stats.MinStackDepth = math.MaxInt32

	stackSet := make(map[string]bool)
	functionSet := make(map[string]bool)

	for _, s := range samples {
		if s.IsSentinel() {
			stats.TotalGroups++
			continue
		}
		stats.TotalSamples++
		stats.TotalTime += s.Value

		depth := len(s.Stack)
		totalDepth += depth

		if depth > stats.MaxStackDepth {
			stats.MaxStackDepth = depth
		}
		if depth < stats.MinStackDepth {
			stats.MinStackDepth = depth
		}

		stackSet[strings.Join(s.Stack, ";")] = true
		for _, name := range s.Stack {
			functionSet[name] = true
		}
	}

	if stats.TotalSamples == 0 {
		stats.MinStackDepth = 0
		return stats
	}

	stats.AverageStackDepth = float64(totalDepth) / float64(stats.TotalSamples)
	stats.UniqueStacks = len(stackSet)
	stats.UniqueFunctions = len(functionSet)

	return stats
}

// FunctionFrequency represents how often a function appears
type FunctionFrequency struct {
	Function   string
	Count      int
	Percentage float64
}

// GetFunctionFrequencies returns functions sorted by how many samples they
// appear in
func GetFunctionFrequencies(samples []collapse.Sample) []FunctionFrequency {
	funcCount := make(map[string]*FunctionFrequency)
	total := 0

	for _, s := range samples {
		if s.IsSentinel() {
			continue
		}
		total++

		seen := make(map[string]bool)
		for _, name := range s.Stack {
			if seen[name] {
				continue
			}
			seen[name] = true

			if _, exists := funcCount[name]; !exists {
				funcCount[name] = &FunctionFrequency{Function: name}
			}
			funcCount[name].Count++
		}
	}

	frequencies := make([]FunctionFrequency, 0, len(funcCount))
	for _, freq := range funcCount {
		if total > 0 {
			freq.Percentage = (float64(freq.Count) / float64(total)) * 100.0
		}
		frequencies = append(frequencies, *freq)
	}

	sort.Slice(frequencies, func(i, j int) bool {
		if frequencies[i].Count != frequencies[j].Count {
			return frequencies[i].Count > frequencies[j].Count
		}
		return frequencies[i].Function < frequencies[j].Function
	})

	return frequencies
}

// PerformanceIssue is a heuristic finding
type PerformanceIssue struct {
	Severity    string // "Critical", "High", "Medium", "Low"
	Category    string // e.g., "Deep Call Stack", "Latency Hotspot"
	Description string
	Function    string
	Impact      float64 // % of total time
}

// deepStackFrames is the depth above which a kernel call chain is reported.
const deepStackFrames = 50

// DetectPerformanceIssues identifies potential latency problems
func DetectPerformanceIssues(samples []collapse.Sample) []PerformanceIssue {
	issues := []PerformanceIssue{}
	stats := ComputeStatistics(samples)

	if stats.MaxStackDepth > deepStackFrames {
		issues = append(issues, PerformanceIssue{
			Severity:    "High",
			Category:    "Deep Call Stack",
			Description: fmt.Sprintf("Maximum stack depth of %d frames detected. This may indicate deep recursion or complex call chains.", stats.MaxStackDepth),
		})
	}

	// Self time is what the collapsed lines attribute, so rank leaf frames
	for _, hs := range FindBottomFunctions(samples, 10) {
		switch {
		case hs.Percentage > 20.0:
			issues = append(issues, PerformanceIssue{
				Severity:    "Critical",
				Category:    "Latency Hotspot",
				Description: fmt.Sprintf("Function accounts for %.2f%% of attributed latency", hs.Percentage),
				Function:    hs.Function,
				Impact:      hs.Percentage,
			})
		case hs.Percentage > 10.0:
			issues = append(issues, PerformanceIssue{
				Severity:    "High",
				Category:    "Latency Hotspot",
				Description: fmt.Sprintf("Function accounts for %.2f%% of attributed latency", hs.Percentage),
				Function:    hs.Function,
				Impact:      hs.Percentage,
			})
		}
	}

	for _, freq := range GetFunctionFrequencies(samples) {
		if freq.Percentage > 80.0 && freq.Count > 1 {
			issues = append(issues, PerformanceIssue{
				Severity:    "Medium",
				Category:    "Hot Path",
				Description: fmt.Sprintf("Function appears in %.2f%% of all samples", freq.Percentage),
				Function:    freq.Function,
				Impact:      freq.Percentage,
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Impact > issues[j].Impact
	})

	return issues
}
