package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecmd-collapse/internal/collapse"
	"tracecmd-collapse/internal/funcgraph"
)

func mustSamples(t *testing.T, lines ...string) []collapse.Sample {
	t.Helper()
	samples, err := collapse.ParseSamples(lines)
	require.NoError(t, err)
	return samples
}

func testSamples(t *testing.T) []collapse.Sample {
	return mustSamples(t,
		"outer;a;b 1.0",
		"outer;a 2.0",
		"outer;c 2.0",
		"outer 5.0",
		"dummy 0",
		"other;b 10.0",
		"other 0.0",
		"dummy 0",
	)
}

func TestFindHotspots(t *testing.T) {
	hotspots := FindHotspots(testSamples(t), 0)
	require.Len(t, hotspots, 5)

	assert.Equal(t, "b", hotspots[0].Function)
	assert.InDelta(t, 11.0, hotspots[0].TotalTime, 1e-9)
	assert.Equal(t, 2, hotspots[0].SampleCount)

	// equal totals fall back to name order
	assert.Equal(t, "other", hotspots[1].Function)
	assert.Equal(t, "outer", hotspots[2].Function)
	assert.InDelta(t, 10.0, hotspots[2].TotalTime, 1e-9)
	assert.InDelta(t, 50.0, hotspots[2].Percentage, 1e-9)

	top := FindHotspots(testSamples(t), 2)
	assert.Len(t, top, 2)
}

func TestFindHotspotsCountsRecursionOnce(t *testing.T) {
	hotspots := FindHotspots(mustSamples(t, "f;f;f 3.0"), 0)
	require.Len(t, hotspots, 1)
	assert.Equal(t, 1, hotspots[0].SampleCount)
	assert.InDelta(t, 3.0, hotspots[0].TotalTime, 1e-9)
}

func TestFindBottomFunctions(t *testing.T) {
	bottom := FindBottomFunctions(testSamples(t), 3)
	require.Len(t, bottom, 3)
	assert.Equal(t, "b", bottom[0].Function)
	assert.InDelta(t, 11.0, bottom[0].TotalTime, 1e-9)
	assert.Equal(t, "outer", bottom[1].Function)
	assert.InDelta(t, 5.0, bottom[1].TotalTime, 1e-9)
	assert.Equal(t, "a", bottom[2].Function)
}

func TestFormatHotspot(t *testing.T) {
	out := FormatHotspot(Hotspot{Function: "do_linkat", TotalTime: 3, SampleCount: 2, Percentage: 60}, 1)
	assert.Equal(t, "#1: do_linkat\n    Time: 3.000 us (60.00%)\n    Samples: 2\n", out)
}

func TestComputeStatistics(t *testing.T) {
	stats := ComputeStatistics(testSamples(t))
	assert.Equal(t, 6, stats.TotalSamples)
	assert.Equal(t, 2, stats.TotalGroups)
	assert.InDelta(t, 20.0, stats.TotalTime, 1e-9)
	assert.Equal(t, 3, stats.MaxStackDepth)
	assert.Equal(t, 1, stats.MinStackDepth)
	assert.InDelta(t, 11.0/6.0, stats.AverageStackDepth, 1e-9)
	assert.Equal(t, 6, stats.UniqueStacks)
	assert.Equal(t, 5, stats.UniqueFunctions)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(mustSamples(t, "dummy 0"))
	assert.Equal(t, 0, stats.TotalSamples)
	assert.Equal(t, 1, stats.TotalGroups)
	assert.Equal(t, 0, stats.MinStackDepth)
}

func TestGetFunctionFrequencies(t *testing.T) {
	freqs := GetFunctionFrequencies(testSamples(t))
	require.NotEmpty(t, freqs)
	assert.Equal(t, "outer", freqs[0].Function)
	assert.Equal(t, 4, freqs[0].Count)
	assert.InDelta(t, 4.0/6.0*100.0, freqs[0].Percentage, 1e-9)
}

func TestDetectPerformanceIssues(t *testing.T) {
	issues := DetectPerformanceIssues(testSamples(t))
	require.NotEmpty(t, issues)
	assert.Equal(t, "Critical", issues[0].Severity)
	assert.Equal(t, "b", issues[0].Function)
	assert.InDelta(t, 55.0, issues[0].Impact, 1e-9)

	deep := make([]string, deepStackFrames+1)
	for i := range deep {
		deep[i] = "f"
	}
	issues = DetectPerformanceIssues(mustSamples(t, strings.Join(deep, ";")+" 1.0"))
	var categories []string
	for _, issue := range issues {
		categories = append(categories, issue.Category)
	}
	assert.Contains(t, categories, "Deep Call Stack")
}

func TestSymbolTable(t *testing.T) {
	report := strings.Join([]string{
		"sysctl-1757  [000]  1718.797855: funcgraph_entry:                   |        __kmalloc_track_caller() {",
		"sysctl-1757  [000]  1718.797855: funcgraph_entry:        0.159 us   |          kmalloc_slab();",
		"sysctl-1757  [000]  1718.797855: funcgraph_entry:                   |          _cond_resched() {",
		"sysctl-1757  [000]  1718.797856: funcgraph_entry:        0.159 us   |            rcu_all_qs();",
		"sysctl-1757  [000]  1718.797856: funcgraph_exit:         0.466 us   |          }",
		"sysctl-1757  [000]  1718.797856: funcgraph_entry:        0.165 us   |          kmalloc_slab();",
		"sysctl-1757  [000]  1718.797857: funcgraph_exit:         1.789 us   |        }",
		"sysctl-1757  [000]  1718.797859: funcgraph_exit:         9.000 us   |        }",
	}, "\n")
	lines, err := funcgraph.ReadLines(strings.NewReader(report))
	require.NoError(t, err)

	table := NewSymbolTable()
	for _, l := range lines {
		table.Add(l)
	}
	assert.Equal(t, 4, table.Len())

	slab, ok := table.Lookup("kmalloc_slab")
	require.True(t, ok)
	assert.Equal(t, 2, slab.Count)
	assert.InDelta(t, 0.324, slab.TotalTime, 1e-9)
	assert.InDelta(t, 0.162, slab.AvgTime(), 1e-9)

	caller, ok := table.Lookup("__kmalloc_track_caller")
	require.True(t, ok)
	assert.Equal(t, 1, caller.Count)
	assert.InDelta(t, 1.789, caller.TotalTime, 1e-9)
	assert.InDelta(t, 1.789-0.159-0.466-0.165, caller.SelfTime, 1e-9)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)

	byCount := table.Sorted(SortByCount)
	assert.Equal(t, "kmalloc_slab", byCount[0].Name)

	byTime := table.Sorted(SortByTime)
	assert.Equal(t, "__kmalloc_track_caller", byTime[0].Name)

	byAvg := table.Sorted(SortByAvgTime)
	assert.Equal(t, "__kmalloc_track_caller", byAvg[0].Name)
	assert.Equal(t, "rcu_all_qs", byAvg[len(byAvg)-1].Name)

	report2 := FormatSymbolReport(byCount, SortByCount)
	assert.Contains(t, report2, "performance analysis (count basis)")
	assert.Contains(t, report2, "kmalloc_slab")
}

func TestParseSortKey(t *testing.T) {
	for _, k := range []string{"count", "time", "avg_time"} {
		key, err := ParseSortKey(k)
		require.NoError(t, err)
		assert.Equal(t, SortKey(k), key)
	}
	_, err := ParseSortKey("name")
	assert.Error(t, err)
}
