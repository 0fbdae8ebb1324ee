package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracecmd-collapse/internal/collapse"
	"tracecmd-collapse/internal/config"
	"tracecmd-collapse/internal/export"
	"tracecmd-collapse/internal/logging"
)

// CollapseOptions holds the flags of the collapse command.
type CollapseOptions struct {
	configPath   string
	minLatencyUS int
	strict       bool
	pprofOutput  string
	logLevel     string

	IOStreams
}

// IOStreams are the standard streams a command reads and writes.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// StdStreams returns the process's standard streams.
func StdStreams() IOStreams {
	return IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}
}

// NewCollapseOptions provides an instance of CollapseOptions with default values.
func NewCollapseOptions(streams IOStreams) *CollapseOptions {
	return &CollapseOptions{
		minLatencyUS: collapse.DefaultMinLatencyUS,
		IOStreams:    streams,
	}
}

// NewCollapseCommand provides the command wrapping CollapseOptions.
func NewCollapseCommand(streams IOStreams) *cobra.Command {
	o := NewCollapseOptions(streams)

	cmd := &cobra.Command{
		Use:   "stackcollapse-trace-cmd [FILE...]",
		Short: "Fold trace-cmd function_graph reports into collapsed stacks",
		Long: `Reads "trace-cmd report" output for the function_graph tracer and prints
one collapsed stack per attributed latency, for every root call tree slower
than the threshold. Reads standard input when no FILE is given.

  trace-cmd record -p function_graph -l do_linkat
  trace-cmd report | MIN_LATENCY_US=500 stackcollapse-trace-cmd | flamegraph.pl --hash --flamechart > flamechart.svg`,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := o.Config(c)
			if err != nil {
				return err
			}
			return o.Run(c.Context(), cfg, args)
		},
	}

	cmd.Flags().StringVar(&o.configPath, "config", o.configPath, "YAML configuration file")
	cmd.Flags().IntVar(&o.minLatencyUS, "min-latency-us", o.minLatencyUS, "only print call trees whose root latency exceeds this many microseconds (default from $MIN_LATENCY_US)")
	cmd.Flags().BoolVar(&o.strict, "strict", o.strict, "fail on unbalanced exits and incomplete trailing call trees")
	cmd.Flags().StringVar(&o.pprofOutput, "pprof", o.pprofOutput, "also write the printed stacks as a pprof profile to this file")
	cmd.Flags().StringVar(&o.logLevel, "log-level", o.logLevel, "log level (debug, info, warn, error)")
	return cmd
}

// Config resolves the configuration: file, then environment, then flags
// that were set explicitly.
func (o *CollapseOptions) Config(c *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if c.Flags().Changed("min-latency-us") {
		cfg.MinLatencyUS = o.minLatencyUS
	}
	if c.Flags().Changed("strict") {
		cfg.Strict = o.strict
	}
	if c.Flags().Changed("pprof") {
		cfg.PprofOutput = o.pprofOutput
	}
	if c.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run collapses every input in order as one stream.
func (o *CollapseOptions) Run(ctx context.Context, cfg *config.Config, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	opts := []collapse.Option{
		collapse.WithDiagnostics(collapse.WriterSink(o.ErrOut)),
		collapse.WithStrict(cfg.Strict),
	}

	var builder *export.Builder
	var hookErr error
	if cfg.PprofOutput != "" {
		builder = export.NewBuilder()
		opts = append(opts, collapse.WithGroupHook(func(lines []string) {
			if err := builder.AddGroup(lines); err != nil && hookErr == nil {
				hookErr = err
			}
		}))
	}

	agg := collapse.New(cfg.MinLatencyUS, o.Out, opts...)
	logger.Debug("collapsing trace",
		zap.Int("min_latency_us", cfg.MinLatencyUS),
		zap.Strings("files", files),
	)

	if len(files) == 0 {
		files = []string{"-"}
	}
	for _, name := range files {
		if err := o.consume(ctx, agg, name); err != nil {
			// keep the groups already printed
			_, _ = agg.Finish()
			return err
		}
	}

	summary, err := agg.Finish()
	if err != nil {
		return err
	}

	logger.Debug("collapse finished",
		zap.Int("lines", summary.Lines),
		zap.Int("trees", summary.Trees),
		zap.Int("emitted", summary.Emitted),
		zap.Int("discarded", summary.Discarded),
		zap.Int("unknown", summary.Unknown),
		zap.Int("unbalanced", summary.Unbalanced),
	)
	if summary.OpenFrames > 0 {
		logger.Info("dropped incomplete call tree at end of input", zap.Int("open_calls", summary.OpenFrames))
	}

	if builder == nil {
		return nil
	}
	if hookErr != nil {
		return fmt.Errorf("build pprof profile: %w", hookErr)
	}
	if err := builder.WriteFile(cfg.PprofOutput); err != nil {
		return err
	}
	logger.Info("wrote pprof profile", zap.String("path", cfg.PprofOutput))
	return nil
}

func (o *CollapseOptions) consume(ctx context.Context, agg *collapse.Aggregator, name string) error {
	if name == "-" {
		return collapse.Consume(ctx, o.In, agg)
	}

	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	if err := collapse.Consume(ctx, f, agg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
