package interop

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSummarize_SkipNeutrality(t *testing.T) {
	s := Summarize([]Result{
		{Browser: "chrome", Status: StatusPassed},
		{Browser: "firefox", Status: StatusSkipped, Error: "known issue"},
		{Browser: "safari", Status: StatusFailed, Error: "boom"},
	})

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.ExitCode)
	assert.False(t, s.Empty())
}

func TestSummarize_TimedOutCountsAsFailure(t *testing.T) {
	s := Summarize([]Result{
		{Browser: "chrome", Status: StatusPassed},
		{Browser: "firefox", Status: StatusTimedOut, Error: TimeoutError},
	})

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.ExitCode)
}

func TestSummarize_EmptyIsFlagged(t *testing.T) {
	s := Summarize([]Result{{Browser: "firefox", Status: StatusSkipped, Error: "known issue"}})

	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0, s.Passed)
	assert.Equal(t, 0, s.ExitCode)
	assert.True(t, s.Empty())

	var buf bytes.Buffer
	Render(&buf, s, Scenario{Name: "server-offer"})
	assert.Contains(t, buf.String(), "WARNING: no browsers were attempted")
	assert.Contains(t, buf.String(), "0/0 passed (1 skipped)")
}

func TestRender(t *testing.T) {
	scenario, err := LookupScenario("media")
	assert.NoError(t, err)

	s := Summarize([]Result{
		{Browser: "chrome", Status: StatusPassed, Metrics: map[string]any{
			"packetsReceived":  float64(120),
			"connectionTimeMs": 412.5,
			"unlisted":         "ignored",
		}},
		{Browser: "firefox", Status: StatusTimedOut, Error: TimeoutError},
		{Browser: "safari", Status: StatusSkipped, Error: "getUserMedia unsupported in headless WebKit"},
	})

	var buf bytes.Buffer
	Render(&buf, s, scenario)
	out := buf.String()

	assert.Contains(t, out, "SUMMARY: media")
	assert.Contains(t, out, "PASS - chrome\n  Packets: 120\n  Connection time: 412.50ms\n")
	assert.Contains(t, out, "FAIL - firefox: Test timeout\n")
	assert.Contains(t, out, "SKIP - safari: getUserMedia unsupported in headless WebKit\n")
	assert.Contains(t, out, "1/2 passed (1 skipped)")
	assert.NotContains(t, out, "unlisted")
	assert.NotContains(t, out, "WARNING")
}

func TestMetricLines(t *testing.T) {
	table := []Metric{
		{Key: "packetsReceived", Label: "Packets"},
		{Key: "fingerprint", Label: "Fingerprint"},
		{Key: "missing", Label: "Missing"},
	}
	lines := MetricLines(map[string]any{
		"packetsReceived": float64(3),
		"fingerprint":     "sha-256 AB:CD",
	}, table)

	assert.Equal(t, []string{"Packets: 3", "Fingerprint: sha-256 AB:CD"}, lines)
}

func TestSummarize_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		statuses := rapid.SliceOf(rapid.SampledFrom([]Status{
			StatusPassed, StatusFailed, StatusTimedOut, StatusSkipped,
		})).Draw(t, "statuses")

		results := make([]Result, len(statuses))
		wantTotal, wantPassed := 0, 0
		for i, st := range statuses {
			results[i] = Result{Browser: "b", Status: st}
			if st != StatusSkipped {
				wantTotal++
			}
			if st == StatusPassed {
				wantPassed++
			}
		}

		s := Summarize(results)
		if len(s.Results) != len(results) {
			t.Fatalf("summary has %d results, want %d", len(s.Results), len(results))
		}
		if s.Total != wantTotal || s.Passed != wantPassed {
			t.Fatalf("got passed=%d total=%d, want passed=%d total=%d", s.Passed, s.Total, wantPassed, wantTotal)
		}
		if (s.ExitCode == 0) != (s.Passed == s.Total) {
			t.Fatalf("exit code %d with passed=%d total=%d", s.ExitCode, s.Passed, s.Total)
		}
	})
}
