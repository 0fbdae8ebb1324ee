package collapse

import (
	"context"
	"fmt"
	"io"

	"tracecmd-collapse/internal/funcgraph"
)

// Consume feeds every line of r to agg in order without finishing it, so
// several inputs can be read as one stream. The context is checked between
// lines.
func Consume(ctx context.Context, r io.Reader, agg *Aggregator) error {
	scanner := funcgraph.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := agg.Feed(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// Run consumes r and finishes agg.
func Run(ctx context.Context, r io.Reader, agg *Aggregator) (Summary, error) {
	if err := Consume(ctx, r, agg); err != nil {
		return agg.summary, err
	}
	return agg.Finish()
}
