package interop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultResultSlot is the page-global the in-page logic writes its
	// result object into.
	DefaultResultSlot = "testResult"

	// DefaultPollInterval is how often the result slot is read.
	DefaultPollInterval = 100 * time.Millisecond
)

// AwaitOptions configures one result acquisition.
type AwaitOptions struct {
	Slot     string        // page-global name; DefaultResultSlot when empty
	Interval time.Duration // poll interval; DefaultPollInterval when zero
	Deadline time.Duration // required; scenario dependent
}

// slotExpr returns the function expression that reads the result slot.
func slotExpr(slot string) string {
	return fmt.Sprintf(`() => {
		const r = window[%q];
		return (r === undefined || r === null) ? null : r;
	}`, slot)
}

type pollOutcome struct {
	payload Payload
	err     error
}

// AwaitResult polls page until the result slot is populated or the deadline
// elapses, whichever comes first. The slot is read immediately and then every
// interval. When the deadline wins, the returned payload is the synthetic
// timeout payload and timedOut is true; the page is left running.
//
// An error is returned when the page cannot be evaluated or the slot holds
// something that is not a result object.
func AwaitResult(ctx context.Context, page Page, opts AwaitOptions) (p Payload, timedOut bool, err error) {
	if opts.Deadline <= 0 {
		return Payload{}, false, fmt.Errorf("result deadline must be positive, got %v", opts.Deadline)
	}
	if opts.Slot == "" {
		opts.Slot = DefaultResultSlot
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the poller never blocks after the deadline has won.
	done := make(chan pollOutcome, 1)
	go poll(pollCtx, page, slotExpr(opts.Slot), opts.Interval, done)

	deadline := time.NewTimer(opts.Deadline)
	defer deadline.Stop()

	select {
	case out := <-done:
		return out.payload, false, out.err
	case <-deadline.C:
		return timeoutPayload(), true, nil
	case <-ctx.Done():
		return Payload{}, false, ctx.Err()
	}
}

// poll reads the slot until it is populated, an evaluation fails, or ctx is
// done. It sends at most one outcome.
func poll(ctx context.Context, page Page, expr string, interval time.Duration, done chan<- pollOutcome) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		raw, err := page.Eval(ctx, expr)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			done <- pollOutcome{err: fmt.Errorf("failed to read result: %w", err)}
			return
		}
		if populated(raw) {
			p, err := DecodePayload(raw)
			done <- pollOutcome{payload: p, err: err}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func populated(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
