package collapse

import (
	"fmt"
	"strconv"
	"strings"
)

// Sample is one parsed collapsed-stack line: "a;b;c 1.5".
type Sample struct {
	Stack []string // outermost frame first
	Value float64
}

// Leaf returns the innermost frame name.
func (s Sample) Leaf() string {
	if len(s.Stack) == 0 {
		return ""
	}
	return s.Stack[len(s.Stack)-1]
}

// IsSentinel reports whether s is the zero-weight line closing each group.
func (s Sample) IsSentinel() bool {
	return len(s.Stack) == 1 && s.Stack[0] == "dummy" && s.Value == 0
}

// ParseSample parses a collapsed-stack line. The value is everything after
// the last space; frames are split on ';'.
func ParseSample(line string) (Sample, error) {
	sep := strings.LastIndexByte(line, ' ')
	if sep <= 0 {
		return Sample{}, fmt.Errorf("malformed collapsed line %q: missing value", line)
	}

	value, err := parseValue(line[sep+1:])
	if err != nil {
		return Sample{}, fmt.Errorf("malformed collapsed line %q: %w", line, err)
	}

	return Sample{
		Stack: strings.Split(line[:sep], ";"),
		Value: value,
	}, nil
}

func parseValue(s string) (float64, error) {
	switch s {
	case "Infinity":
		s = "+Inf"
	case "-Infinity":
		s = "-Inf"
	}
	return strconv.ParseFloat(s, 64)
}

// ParseSamples parses every line of a group.
func ParseSamples(lines []string) ([]Sample, error) {
	samples := make([]Sample, 0, len(lines))
	for _, l := range lines {
		s, err := ParseSample(l)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}
