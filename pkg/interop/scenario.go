package interop

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrUnknownScenario is returned for a scenario name with no registry entry.
var ErrUnknownScenario = errors.New("unknown scenario")

// Metric describes how a page metric is rendered in the report.
type Metric struct {
	Key   string // field name in the page result object
	Label string
	Unit  string // appended to the value, e.g. "ms"
}

// Scenario is one interop test served by the peer server.
type Scenario struct {
	Name string

	// Path is the page path, with query, relative to the server base URL.
	Path string

	// Timeout is the result deadline for one browser attempt.
	Timeout time.Duration

	// Requires lists capabilities a browser needs to run the scenario.
	Requires []Capability

	// ResetBetween marks scenarios that share server-side state between
	// browsers. The coordinator resets the server and waits the settling
	// delay between attempts.
	ResetBetween bool

	Metrics []Metric
}

var connectionMetric = Metric{Key: "connectionTimeMs", Label: "Connection time", Unit: "ms"}

var scenarios = map[string]Scenario{
	"datachannel": {
		Name:    "datachannel",
		Path:    "/?scenario=datachannel",
		Timeout: 30 * time.Second,
		Metrics: []Metric{
			{Key: "messagesSent", Label: "Messages sent"},
			{Key: "messagesReceived", Label: "Messages"},
			connectionMetric,
		},
	},
	"media": {
		Name:     "media",
		Path:     "/?scenario=media",
		Timeout:  45 * time.Second,
		Requires: []Capability{CapHeadlessMedia},
		Metrics: []Metric{
			{Key: "packetsReceived", Label: "Packets"},
			{Key: "bytesReceived", Label: "Bytes"},
			connectionMetric,
		},
	},
	"server-offer": {
		Name:     "server-offer",
		Path:     "/?scenario=server-offer",
		Timeout:  30 * time.Second,
		Requires: []Capability{CapAnswerServerOffer},
		Metrics: []Metric{
			{Key: "messagesReceived", Label: "Messages"},
			connectionMetric,
		},
	},
	"multi-client": {
		Name:         "multi-client",
		Path:         "/?scenario=multi-client",
		Timeout:      30 * time.Second,
		ResetBetween: true,
		Metrics: []Metric{
			{Key: "peers", Label: "Server peers"},
			{Key: "messagesReceived", Label: "Messages"},
			connectionMetric,
		},
	},
}

// LookupScenario returns the built-in scenario with the given name.
func LookupScenario(name string) (Scenario, error) {
	s, ok := scenarios[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scenario{}, fmt.Errorf("%w %q (available: %s)",
			ErrUnknownScenario, name, strings.Join(ScenarioNames(), ", "))
	}
	return s, nil
}

// ScenarioNames returns the built-in scenario names, sorted.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SkipReason reports whether spec is known to be incompatible with the
// scenario, and why.
func SkipReason(spec BrowserSpec, s Scenario) (string, bool) {
	for _, c := range s.Requires {
		if reason, ok := spec.Lacks(c); ok {
			return reason, true
		}
	}
	return "", false
}

// RunTarget is the server under test and the scenario to run against it.
type RunTarget struct {
	BaseURL  string
	Scenario Scenario
}

// PageURL returns the page a browser navigates to.
func (t RunTarget) PageURL(browser string) (string, error) {
	base, err := url.Parse(strings.TrimRight(t.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	path := t.Scenario.Path
	if path == "" {
		path = "/"
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse scenario path: %w", err)
	}
	u := base.ResolveReference(ref)
	q := u.Query()
	q.Set("browser", browser)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// String returns the target in log form.
func (t RunTarget) String() string {
	if t.Scenario.Name == "" {
		return t.BaseURL
	}
	return fmt.Sprintf("%s (%s)", t.BaseURL, t.Scenario.Name)
}
