package collapse

import (
	"math"
	"strconv"
	"strings"
)

// FormatLatency renders a latency the way flamegraph tooling for trace-cmd
// expects it: the shortest round-tripping decimal, always with a fractional
// part ("2.0", "0.349"). Very large or very small magnitudes use an exponent
// ("1.0e-05", "1.0e+16").
func FormatLatency(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		if !strings.Contains(mantissa, ".") {
			mantissa += ".0"
		}
		return mantissa + "e" + exp
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
