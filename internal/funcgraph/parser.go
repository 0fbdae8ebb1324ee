package funcgraph

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Every call record starts with "<task>-<pid> [<cpu>] <timestamp>: ".
// Example:
//
//	gitaly-3521172 [019] 8001008.806634: funcgraph_entry:                   |    filename_lookup() {
//	gitaly-3521172 [019] 8001008.806636: funcgraph_entry:        0.349 us   |            set_root();
//	gitaly-3521172 [019] 8001008.806636: funcgraph_exit:         1.170 us   |          }
const recordPrefix = `^\s*\S+\s+\[\d+\]\s+\d+\.\d+:\s+`

// durationFlag is the optional marker trace-cmd puts in front of long durations.
const durationFlag = `[+!#*@$]?`

var (
	entryOpenRe = regexp.MustCompile(recordPrefix + `funcgraph_entry:\s+\|\s+(.+)\(\)\s+\{$`)
	entryLeafRe = regexp.MustCompile(recordPrefix + `funcgraph_entry:\s+` + durationFlag + `\s(\d+\.\d+) us\s+\|\s+(.+)\(\);$`)
	exitRe      = regexp.MustCompile(recordPrefix + `funcgraph_exit:\s+` + durationFlag + `\s(\d+\.\d+) us\s+\|\s+\}$`)
	ignorableRe = regexp.MustCompile(`^(?:CPU \d+ is empty|cpus=\d+)$`)
)

// Classify determines the kind of a single report line. Shapes are tried in
// priority order: entry-open, entry-leaf, exit, ignorable.
func Classify(raw string) Line {
	text := strings.TrimRight(raw, "\r\n")
	line := Line{Raw: text}

	if m := entryOpenRe.FindStringSubmatch(text); m != nil {
		line.Kind = KindEntryOpen
		line.Name = m[1]
		return line
	}

	if m := entryLeafRe.FindStringSubmatch(text); m != nil {
		line.Kind = KindEntryLeaf
		line.Latency = parseLatency(m[1])
		line.Name = m[2]
		return line
	}

	if m := exitRe.FindStringSubmatch(text); m != nil {
		line.Kind = KindExit
		line.Latency = parseLatency(m[1])
		return line
	}

	if ignorableRe.MatchString(text) {
		line.Kind = KindIgnorable
		return line
	}

	line.Kind = KindUnknown
	return line
}

// parseLatency converts a matched "\d+\.\d+" duration. The grammar rules out
// syntax errors; an out-of-range value comes back as +Inf and is kept.
func parseLatency(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// ReadLines classifies every line of r in order and returns the call records.
// Ignorable and unknown lines are dropped.
func ReadLines(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := NewScanner(r)
	for scanner.Scan() {
		line := Classify(scanner.Text())
		if !line.IsCall() {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading trace: %w", err)
	}
	return lines, nil
}

// maxLineSize bounds a single report line. Deeply nested calls indent the
// function name, so lines can be far longer than bufio's 64KiB default.
const maxLineSize = 4 * 1024 * 1024

// NewScanner returns a line scanner sized for trace-cmd reports.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}
