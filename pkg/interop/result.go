package interop

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingSuccess is returned when the page result object has no boolean
// "success" field.
var ErrMissingSuccess = errors.New("result has no boolean success field")

// TimeoutError is the error string recorded when the result deadline elapses.
const TimeoutError = "Test timeout"

// Status is the terminal state of one browser attempt.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusTimedOut
	StatusSkipped
)

// String returns the report marker for the status.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "PASS"
	case StatusFailed, StatusTimedOut:
		return "FAIL"
	case StatusSkipped:
		return "SKIP"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Label is the lowercase metric label for the status.
func (s Status) Label() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Payload is the object the in-page test logic writes into the result slot.
type Payload struct {
	Success bool
	Error   string
	Metrics map[string]any
}

// timeoutPayload is synthesized when the deadline wins the race.
func timeoutPayload() Payload {
	return Payload{Success: false, Error: TimeoutError}
}

// DecodePayload parses the JSON value read from the result slot.
// Fields other than success and error are kept as metrics.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, fmt.Errorf("decode result: %w", err)
	}
	if fields == nil {
		return Payload{}, ErrMissingSuccess
	}

	success, ok := fields["success"].(bool)
	if !ok {
		return Payload{}, ErrMissingSuccess
	}

	p := Payload{Success: success}
	switch v := fields["error"].(type) {
	case nil:
	case string:
		p.Error = v
	default:
		p.Error = fmt.Sprint(v)
	}

	delete(fields, "success")
	delete(fields, "error")
	if len(fields) > 0 {
		p.Metrics = fields
	}
	return p, nil
}

// Result is the canonical outcome of one browser in a run.
type Result struct {
	Browser  string
	Status   Status
	Error    string // failure message, or the skip reason
	Metrics  map[string]any
	Duration time.Duration
}

// Success reports whether the browser passed.
func (r Result) Success() bool {
	return r.Status == StatusPassed
}

// Skipped reports whether the browser was never attempted.
func (r Result) Skipped() bool {
	return r.Status == StatusSkipped
}

func skippedResult(browser, reason string) Result {
	return Result{Browser: browser, Status: StatusSkipped, Error: reason}
}

func failedResult(browser string, err error) Result {
	return Result{Browser: browser, Status: StatusFailed, Error: err.Error()}
}

// resultFromPayload converts an acquired payload into a Result.
func resultFromPayload(browser string, p Payload, timedOut bool) Result {
	r := Result{Browser: browser, Error: p.Error, Metrics: p.Metrics}
	switch {
	case timedOut:
		r.Status = StatusTimedOut
	case p.Success:
		r.Status = StatusPassed
	default:
		r.Status = StatusFailed
		if r.Error == "" {
			r.Error = "test reported failure"
		}
	}
	return r
}
