package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"tracecmd-collapse/internal/collapse"
)

// Hotspot represents a function that accounts for significant latency
type Hotspot struct {
	Function    string
	TotalTime   float64 // Microseconds attributed to stacks containing this function
	SampleCount int     // Number of collapsed samples containing this function
	Percentage  float64 // Percentage of total attributed latency
	SampleRefs  []int   // Indices of samples containing this function
}

// FindHotspots ranks functions by the latency of every sample they appear in.
// Returns hotspots sorted by total time (descending)
func FindHotspots(samples []collapse.Sample, topN int) []Hotspot {
	hotspotMap := make(map[string]*Hotspot)
	totalTime := 0.0

	for idx, s := range samples {
		if s.IsSentinel() {
			continue
		}
		totalTime += s.Value

		// Recursive calls appear more than once in a stack
		seenInThisStack := make(map[string]bool)
		for _, name := range s.Stack {
			if seenInThisStack[name] {
				continue
			}
			seenInThisStack[name] = true

			hs, exists := hotspotMap[name]
			if !exists {
				hs = &Hotspot{Function: name}
				hotspotMap[name] = hs
			}
			hs.TotalTime += s.Value
			hs.SampleCount++
			hs.SampleRefs = append(hs.SampleRefs, idx)
		}
	}

	return rank(hotspotMap, totalTime, topN)
}

// FindBottomFunctions ranks the innermost frame of each sample, which is
// where the latency was attributed.
func FindBottomFunctions(samples []collapse.Sample, topN int) []Hotspot {
	bottomFuncMap := make(map[string]*Hotspot)
	totalTime := 0.0

	for idx, s := range samples {
		if s.IsSentinel() || len(s.Stack) == 0 {
			continue
		}
		totalTime += s.Value

		name := s.Leaf()
		hs, exists := bottomFuncMap[name]
		if !exists {
			hs = &Hotspot{Function: name}
			bottomFuncMap[name] = hs
		}
		hs.TotalTime += s.Value
		hs.SampleCount++
		hs.SampleRefs = append(hs.SampleRefs, idx)
	}

	return rank(bottomFuncMap, totalTime, topN)
}

func rank(m map[string]*Hotspot, totalTime float64, topN int) []Hotspot {
	hotspots := make([]Hotspot, 0, len(m))
	for _, hs := range m {
		if totalTime > 0 {
			hs.Percentage = (hs.TotalTime / totalTime) * 100.0
		}
		hotspots = append(hotspots, *hs)
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].TotalTime != hotspots[j].TotalTime {
			return hotspots[i].TotalTime > hotspots[j].TotalTime
		}
		return hotspots[i].Function < hotspots[j].Function
	})

	if topN > 0 && topN < len(hotspots) {
		return hotspots[:topN]
	}
	return hotspots
}

// FormatHotspot returns a human-readable string representation of a hotspot
func FormatHotspot(hs Hotspot, rank int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#%d: %s\n", rank, hs.Function))
	sb.WriteString(fmt.Sprintf("    Time: %.3f us (%.2f%%)\n", hs.TotalTime, hs.Percentage))
	sb.WriteString(fmt.Sprintf("    Samples: %d\n", hs.SampleCount))

	return sb.String()
}
