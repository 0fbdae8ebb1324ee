package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/google/pprof/profile"

	"tracecmd-collapse/internal/collapse"
)

// Builder accumulates collapsed samples into a pprof profile. Latencies are
// rebased from microseconds to nanoseconds. Identical stacks are merged.
type Builder struct {
	prof      *profile.Profile
	functions map[string]*profile.Function
	locations map[string]*profile.Location
	samples   map[string]*profile.Sample
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "latency", Unit: "nanoseconds"},
				{Type: "samples", Unit: "count"},
			},
			PeriodType: &profile.ValueType{Type: "latency", Unit: "nanoseconds"},
			Period:     1,
		},
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
		samples:   make(map[string]*profile.Sample),
	}
}

// AddGroup parses and adds one emitted group. It has the signature of an
// aggregator group hook's payload.
func (b *Builder) AddGroup(lines []string) error {
	samples, err := collapse.ParseSamples(lines)
	if err != nil {
		return err
	}
	for _, s := range samples {
		b.Add(s)
	}
	return nil
}

// Add records one sample. Sentinels, empty stacks and non-finite values are
// skipped.
func (b *Builder) Add(s collapse.Sample) {
	if s.IsSentinel() || len(s.Stack) == 0 || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return
	}

	key := strings.Join(s.Stack, ";")
	ns := int64(math.Round(s.Value * 1000))
	if sample, ok := b.samples[key]; ok {
		sample.Value[0] += ns
		sample.Value[1]++
		return
	}

	// pprof lists locations leaf first
	locs := make([]*profile.Location, 0, len(s.Stack))
	for i := len(s.Stack) - 1; i >= 0; i-- {
		locs = append(locs, b.location(s.Stack[i]))
	}

	sample := &profile.Sample{
		Location: locs,
		Value:    []int64{ns, 1},
	}
	b.samples[key] = sample
	b.prof.Sample = append(b.prof.Sample, sample)
}

func (b *Builder) location(name string) *profile.Location {
	if loc, ok := b.locations[name]; ok {
		return loc
	}

	fn, ok := b.functions[name]
	if !ok {
		fn = &profile.Function{
			ID:         uint64(len(b.prof.Function) + 1),
			Name:       name,
			SystemName: name,
		}
		b.functions[name] = fn
		b.prof.Function = append(b.prof.Function, fn)
	}

	loc := &profile.Location{
		ID:   uint64(len(b.prof.Location) + 1),
		Line: []profile.Line{{Function: fn}},
	}
	b.locations[name] = loc
	b.prof.Location = append(b.prof.Location, loc)
	return loc
}

// Profile returns the profile built so far.
func (b *Builder) Profile() *profile.Profile {
	return b.prof
}

// Write serializes the profile in gzipped protobuf form.
func (b *Builder) Write(w io.Writer) error {
	if err := b.prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return b.prof.Write(w)
}

// WriteFile writes the profile to path.
func (b *Builder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := b.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
