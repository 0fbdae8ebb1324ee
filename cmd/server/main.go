package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"tracecmd-collapse/internal/analyzer"
	"tracecmd-collapse/internal/config"
	"tracecmd-collapse/internal/export"
	"tracecmd-collapse/internal/logging"
)

// Trace cache, keyed by file path
var (
	cacheMu    sync.RWMutex
	traceCache = make(map[string]*analyzer.TraceData)
)

func cachedTrace(filePath string) (*analyzer.TraceData, bool) {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	data, ok := traceCache[filePath]
	return data, ok
}

const notLoaded = "Trace not collapsed. Use collapse_trace tool first"

func main() {
	configPath := pflag.String("config", "", "YAML configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create MCP server
	s := server.NewMCPServer(
		"funcgraph-collapse",
		"1.0.0",
		server.WithLogging(),
	)

	// Tool 1: Collapse Trace
	collapseTraceTool := mcp.NewTool("collapse_trace",
		mcp.WithDescription("Collapse a trace-cmd function_graph report into flamegraph-ready collapsed stacks. Only root call trees slower than min_latency_us are kept."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the output of `trace-cmd report`"),
		),
		mcp.WithNumber("min_latency_us",
			mcp.Description(fmt.Sprintf("Minimum root latency in microseconds (default: %d)", cfg.MinLatencyUS)),
		),
	)

	s.AddTool(collapseTraceTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		threshold := int(request.GetFloat("min_latency_us", float64(cfg.MinLatencyUS)))
		if threshold < 0 {
			return mcp.NewToolResultError("min_latency_us must not be negative"), nil
		}

		data, err := analyzer.LoadTrace(ctx, filePath, threshold)
		if err != nil {
			logger.Warn("collapse failed", zap.String("file", filePath), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to collapse trace: %v", err)), nil
		}

		cacheMu.Lock()
		traceCache[filePath] = data
		cacheMu.Unlock()

		logger.Info("collapsed trace",
			zap.String("file", filePath),
			zap.Int("min_latency_us", threshold),
			zap.Int("trees", data.Summary.Trees),
			zap.Int("emitted", data.Summary.Emitted),
		)

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf(`Trace collapsed successfully!

File: %s
Threshold: %d us
Lines: %d
Call trees: %d (emitted %d, below threshold %d)
Unknown lines: %d
Unbalanced exits: %d
Open calls dropped at end: %d

`,
			filePath,
			threshold,
			data.Summary.Lines,
			data.Summary.Trees,
			data.Summary.Emitted,
			data.Summary.Discarded,
			data.Summary.Unknown,
			data.Summary.Unbalanced,
			data.Summary.OpenFrames,
		))

		for _, d := range data.Diagnostics {
			sb.WriteString(d.String())
			sb.WriteString("\n")
		}
		if len(data.Diagnostics) > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString("Collapsed stacks:\n")
		sb.WriteString(data.Collapsed)

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 2: Find Hotspots
	findHotspotsTool := mcp.NewTool("find_hotspots",
		mcp.WithDescription("Rank functions by the attributed latency of the innermost frame of each collapsed stack. These are where time was actually spent."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a trace already passed to collapse_trace"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of top hotspots to return (default: 10)"),
		),
		mcp.WithBoolean("inclusive",
			mcp.Description("Rank by every stack a function appears in instead of the innermost frame (default: false)"),
		),
	)

	s.AddTool(findHotspotsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topN := int(request.GetFloat("top_n", 10.0))

		data, ok := cachedTrace(filePath)
		if !ok {
			return mcp.NewToolResultError(notLoaded), nil
		}

		var hotspots []analyzer.Hotspot
		if request.GetBool("inclusive", false) {
			hotspots = analyzer.FindHotspots(data.Samples, topN)
		} else {
			hotspots = analyzer.FindBottomFunctions(data.Samples, topN)
		}

		var sb strings.Builder
		sb.WriteString("TOP LATENCY HOTSPOTS\n")
		sb.WriteString("====================\n\n")

		if len(hotspots) == 0 {
			sb.WriteString("No hotspots found. Try a lower min_latency_us.\n")
		} else {
			for i, hs := range hotspots {
				sb.WriteString(analyzer.FormatHotspot(hs, i+1))
				sb.WriteString("\n")
			}
		}

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 3: Symbol Statistics
	symbolStatsTool := mcp.NewTool("symbol_stats",
		mcp.WithDescription("Per-function call count, total time, average time and self time over the whole trace, regardless of the latency threshold."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a trace already passed to collapse_trace"),
		),
		mcp.WithString("sort_by",
			mcp.Description("Sort key: count, time or avg_time (default: time)"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of functions to return (default: 20, 0 for all)"),
		),
	)

	s.AddTool(symbolStatsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		key, err := analyzer.ParseSortKey(request.GetString("sort_by", string(analyzer.SortByTime)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topN := int(request.GetFloat("top_n", 20.0))

		data, ok := cachedTrace(filePath)
		if !ok {
			return mcp.NewToolResultError(notLoaded), nil
		}

		symbols := data.Symbols.Sorted(key)
		if topN > 0 && topN < len(symbols) {
			symbols = symbols[:topN]
		}

		return mcp.NewToolResultText(analyzer.FormatSymbolReport(symbols, key)), nil
	})

	// Tool 4: Detect Performance Issues
	detectIssuesTool := mcp.NewTool("detect_performance_issues",
		mcp.WithDescription("Automatically flag latency hotspots, hot paths and deep call chains in the collapsed stacks."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a trace already passed to collapse_trace"),
		),
	)

	s.AddTool(detectIssuesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, ok := cachedTrace(filePath)
		if !ok {
			return mcp.NewToolResultError(notLoaded), nil
		}

		issues := analyzer.DetectPerformanceIssues(data.Samples)

		var sb strings.Builder
		sb.WriteString("AUTOMATED LATENCY ISSUE DETECTION\n")
		sb.WriteString("=================================\n\n")

		if len(issues) == 0 {
			sb.WriteString("No significant issues detected.\n")
		}
		for i, issue := range issues {
			sb.WriteString(fmt.Sprintf("%d. [%s] [%s] %s\n", i+1, issue.Severity, issue.Category, issue.Description))
			if issue.Function != "" {
				sb.WriteString(fmt.Sprintf("   Function: %s\n", issue.Function))
			}
			sb.WriteString("\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 5: Get Statistics
	getStatisticsTool := mcp.NewTool("get_statistics",
		mcp.WithDescription("Statistics about the collapsed stacks: total attributed latency, sample and group counts, stack depths, unique functions."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a trace already passed to collapse_trace"),
		),
	)

	s.AddTool(getStatisticsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, ok := cachedTrace(filePath)
		if !ok {
			return mcp.NewToolResultError(notLoaded), nil
		}

		stats := analyzer.ComputeStatistics(data.Samples)

		var sb strings.Builder
		sb.WriteString("COLLAPSED STACK STATISTICS\n")
		sb.WriteString("==========================\n\n")

		sb.WriteString(fmt.Sprintf("Threshold: %d us\n", data.ThresholdUS))
		sb.WriteString(fmt.Sprintf("Total Attributed Latency: %.3f us\n", stats.TotalTime))
		sb.WriteString(fmt.Sprintf("Groups (call trees emitted): %d\n", stats.TotalGroups))
		sb.WriteString(fmt.Sprintf("Samples: %d\n\n", stats.TotalSamples))

		sb.WriteString("Stack Depth Statistics:\n")
		sb.WriteString(fmt.Sprintf("  Average: %.2f frames\n", stats.AverageStackDepth))
		sb.WriteString(fmt.Sprintf("  Maximum: %d frames\n", stats.MaxStackDepth))
		sb.WriteString(fmt.Sprintf("  Minimum: %d frames\n\n", stats.MinStackDepth))

		sb.WriteString("Unique Elements:\n")
		sb.WriteString(fmt.Sprintf("  Stacks: %d\n", stats.UniqueStacks))
		sb.WriteString(fmt.Sprintf("  Functions: %d\n", stats.UniqueFunctions))
		sb.WriteString(fmt.Sprintf("  Functions traced (any latency): %d\n", data.Symbols.Len()))

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 6: Export pprof
	exportPprofTool := mcp.NewTool("export_pprof",
		mcp.WithDescription("Write the collapsed stacks of a trace as a gzipped pprof profile (latency in nanoseconds) for `go tool pprof`."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a trace already passed to collapse_trace"),
		),
		mcp.WithString("output_path",
			mcp.Required(),
			mcp.Description("Where to write the .pb.gz profile"),
		),
	)

	s.AddTool(exportPprofTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		outputPath, err := request.RequireString("output_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, ok := cachedTrace(filePath)
		if !ok {
			return mcp.NewToolResultError(notLoaded), nil
		}

		b := export.NewBuilder()
		for _, sample := range data.Samples {
			b.Add(sample)
		}
		if err := b.WriteFile(outputPath); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to write profile: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Wrote %d samples to %s\n", len(b.Profile().Sample), outputPath)), nil
	})

	// Start the server
	logger.Info("serving MCP on stdio", zap.Int("default_min_latency_us", cfg.MinLatencyUS))
	if err := server.ServeStdio(s); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
