package interop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSettleDelay separates attempts of scenarios with shared server state.
const DefaultSettleDelay = time.Second

// attemptState is a step of one browser attempt. Transitions are logged at
// debug level.
type attemptState string

const (
	statePending        attemptState = "pending"
	stateSkipped        attemptState = "skipped"
	stateLaunching      attemptState = "launching"
	stateNavigating     attemptState = "navigating"
	stateAwaitingResult attemptState = "awaiting-result"
	stateCompleted      attemptState = "completed"
	stateTimedOut       attemptState = "timed-out"
	stateReleased       attemptState = "released"
)

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator) error

// WithHTTPClient sets the client used for readiness and reset requests.
func WithHTTPClient(client *http.Client) CoordinatorOption {
	return func(c *Coordinator) error {
		if client == nil {
			return errors.New("http client must not be nil")
		}
		c.client = client
		return nil
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) error {
		c.log = log
		return nil
	}
}

// WithMetrics records every result on m.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) error {
		c.metrics = m
		return nil
	}
}

// WithSettleDelay sets the pause between attempts of scenarios that reset
// server state. Default: 1 second
func WithSettleDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) error {
		if d < 0 {
			return errors.New("settle delay must not be negative")
		}
		c.settle = d
		return nil
	}
}

// WithPollInterval sets the result slot poll interval.
// Default: 100ms
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.interval = d
		return nil
	}
}

// WithDeadline overrides the scenario's result deadline.
func WithDeadline(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) error {
		if d < 0 {
			return errors.New("deadline must not be negative")
		}
		c.deadline = d
		return nil
	}
}

// WithReadyOptions configures the server readiness probe.
func WithReadyOptions(opts ReadyOptions) CoordinatorOption {
	return func(c *Coordinator) error {
		c.ready = opts
		return nil
	}
}

// WithOutput sets where per-browser section headers are written.
// Default: io.Discard
func WithOutput(w io.Writer) CoordinatorOption {
	return func(c *Coordinator) error {
		if w == nil {
			w = io.Discard
		}
		c.out = w
		return nil
	}
}

// Coordinator runs a scenario across a browser matrix, one browser at a
// time. Browsers share the peer server, so attempts are never concurrent.
type Coordinator struct {
	sessions *SessionManager
	client   *http.Client
	log      zerolog.Logger
	metrics  *Metrics
	out      io.Writer
	ready    ReadyOptions
	settle   time.Duration
	interval time.Duration
	deadline time.Duration
}

// NewCoordinator creates a Coordinator that launches browsers through
// sessions.
func NewCoordinator(sessions *SessionManager, opts ...CoordinatorOption) (*Coordinator, error) {
	if sessions == nil {
		return nil, errors.New("session manager must not be nil")
	}
	c := &Coordinator{
		sessions: sessions,
		client:   &http.Client{},
		log:      zerolog.Nop(),
		out:      io.Discard,
		ready:    DefaultReadyOptions(),
		settle:   DefaultSettleDelay,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Run checks that the server is ready, then runs every browser in matrix
// order and returns one Result per browser, in the same order. The only
// error is a failed readiness check, in which case no browser is launched.
func (c *Coordinator) Run(ctx context.Context, matrix []BrowserSpec, target RunTarget) ([]Result, error) {
	c.log.Info().Str("target", target.String()).Int("browsers", len(matrix)).Msg("checking server")
	if err := CheckReady(ctx, c.client, target.BaseURL, c.ready); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matrix))
	attempted := false
	for _, spec := range matrix {
		fmt.Fprintf(c.out, "\n--- %s: %s ---\n", spec.ID, target)

		if reason, skip := SkipReason(spec, target.Scenario); skip {
			c.transition(spec, statePending, stateSkipped)
			c.log.Info().Str("browser", spec.ID).Str("reason", reason).Msg("skipping")
			c.record(target, skippedResult(spec.ID, reason), &results)
			continue
		}

		if attempted && target.Scenario.ResetBetween {
			ResetServer(ctx, c.client, target.BaseURL, c.log)
			if err := sleep(ctx, c.settle); err != nil {
				c.record(target, failedResult(spec.ID, err), &results)
				continue
			}
		}
		attempted = true

		start := time.Now()
		r := c.attempt(ctx, spec, target)
		r.Duration = time.Since(start)
		c.record(target, r, &results)
	}
	return results, nil
}

// attempt runs one browser. Nothing raised below this boundary escapes it:
// errors and panics become a failed Result.
func (c *Coordinator) attempt(ctx context.Context, spec BrowserSpec, target RunTarget) (r Result) {
	state := statePending
	move := func(to attemptState) {
		c.transition(spec, state, to)
		state = to
	}
	defer func() {
		if p := recover(); p != nil {
			c.log.Error().Str("browser", spec.ID).Interface("panic", p).Msg("attempt panicked")
			r = failedResult(spec.ID, fmt.Errorf("panic: %v", p))
		}
	}()

	move(stateLaunching)
	s, err := c.sessions.Launch(ctx, spec)
	if err != nil {
		move(stateCompleted)
		return failedResult(spec.ID, err)
	}
	defer func() {
		c.sessions.Release(s)
		move(stateReleased)
	}()

	move(stateNavigating)
	if err := c.sessions.Navigate(ctx, s, target); err != nil {
		move(stateCompleted)
		return failedResult(spec.ID, err)
	}

	move(stateAwaitingResult)
	payload, timedOut, err := AwaitResult(ctx, s.Page, AwaitOptions{
		Interval: c.interval,
		Deadline: c.deadlineFor(target.Scenario),
	})
	if err != nil {
		move(stateCompleted)
		return failedResult(spec.ID, err)
	}
	if timedOut {
		move(stateTimedOut)
	} else {
		move(stateCompleted)
	}
	return resultFromPayload(spec.ID, payload, timedOut)
}

func (c *Coordinator) deadlineFor(s Scenario) time.Duration {
	if c.deadline > 0 {
		return c.deadline
	}
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 30 * time.Second
}

func (c *Coordinator) record(target RunTarget, r Result, results *[]Result) {
	*results = append(*results, r)
	c.metrics.ObserveResult(target.Scenario.Name, r)
	writeResult(c.out, r, target.Scenario.Metrics)

	ev := c.log.Info().Str("browser", r.Browser).Str("status", r.Status.Label())
	if r.Error != "" {
		ev = ev.Str("error", r.Error)
	}
	if r.Metrics != nil {
		ev = ev.Interface("metrics", r.Metrics)
	}
	ev.Dur("duration", r.Duration).Msg("browser finished")
}

func (c *Coordinator) transition(spec BrowserSpec, from, to attemptState) {
	c.log.Debug().Str("browser", spec.ID).Str("from", string(from)).Str("to", string(to)).Msg("state")
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
