package interop

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Summary is the aggregate of a run. It is computed once and never mutated.
type Summary struct {
	Results  []Result
	Passed   int // passing non-skipped results
	Total    int // non-skipped results
	Skipped  int
	ExitCode int
}

// Empty reports whether no browser was attempted. The exit code is 0 in
// that case, but Render prints a warning instead of a plain pass line.
func (s Summary) Empty() bool {
	return s.Total == 0
}

// Summarize aggregates results. Skipped results count toward neither Passed
// nor Total. ExitCode is 0 iff every attempted browser passed.
func Summarize(results []Result) Summary {
	s := Summary{Results: append([]Result(nil), results...)}
	for _, r := range results {
		if r.Skipped() {
			s.Skipped++
			continue
		}
		s.Total++
		if r.Success() {
			s.Passed++
		}
	}
	if s.Passed != s.Total {
		s.ExitCode = 1
	}
	return s
}

const rule = "=================================================="

// Render writes the human-readable summary block.
func Render(w io.Writer, s Summary, scenario Scenario) {
	fmt.Fprintf(w, "\n%s\n", rule)
	if scenario.Name != "" {
		fmt.Fprintf(w, "SUMMARY: %s\n", scenario.Name)
	} else {
		fmt.Fprintln(w, "SUMMARY")
	}
	fmt.Fprintln(w, rule)

	for _, r := range s.Results {
		writeResult(w, r, scenario.Metrics)
	}

	fmt.Fprintln(w, strings.Repeat("-", len(rule)))
	line := fmt.Sprintf("%d/%d passed", s.Passed, s.Total)
	if s.Skipped > 0 {
		line += fmt.Sprintf(" (%d skipped)", s.Skipped)
	}
	fmt.Fprintln(w, line)
	if s.Empty() {
		fmt.Fprintln(w, "WARNING: no browsers were attempted; nothing was verified")
	}
}

// writeResult writes the marker line of r, followed by its metric lines when
// it passed.
func writeResult(w io.Writer, r Result, table []Metric) {
	if r.Status != StatusPassed {
		fmt.Fprintf(w, "%s - %s: %s\n", r.Status, r.Browser, r.Error)
		return
	}
	fmt.Fprintf(w, "%s - %s\n", r.Status, r.Browser)
	for _, line := range MetricLines(r.Metrics, table) {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

// MetricLines formats the metrics listed in table, in table order. Metrics
// missing from the result are left out.
func MetricLines(metrics map[string]any, table []Metric) []string {
	var lines []string
	for _, m := range table {
		v, ok := metrics[m.Key]
		if !ok || v == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s%s", m.Label, formatMetric(v), m.Unit))
	}
	return lines
}

func formatMetric(v any) string {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', 2, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}
