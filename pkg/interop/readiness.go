package interop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// ErrServerNotReady is returned when the peer server does not answer its
// status probe.
var ErrServerNotReady = errors.New("peer server not ready")

// DefaultStartCommand is the command printed when the peer server is down.
const DefaultStartCommand = "go run ./cmd/peer-server"

// ReadyOptions configures the readiness probe.
type ReadyOptions struct {
	Timeout      time.Duration // per-probe timeout
	Retries      uint64        // extra probes after the first
	Backoff      time.Duration // delay between probes
	StartCommand string        // shown to the operator on failure
}

// DefaultReadyOptions returns a single 5s probe.
func DefaultReadyOptions() ReadyOptions {
	return ReadyOptions{
		Timeout:      5 * time.Second,
		Backoff:      time.Second,
		StartCommand: DefaultStartCommand,
	}
}

// CheckReady issues GET <base>/status. Any response below 400 means ready.
// On failure the error wraps ErrServerNotReady and tells the operator how to
// start the server.
func CheckReady(ctx context.Context, client *http.Client, baseURL string, opts ReadyOptions) error {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReadyOptions().Timeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultReadyOptions().Backoff
	}
	if opts.StartCommand == "" {
		opts.StartCommand = DefaultStartCommand
	}

	backoff, err := retry.NewConstant(opts.Backoff)
	if err != nil {
		return fmt.Errorf("create readiness backoff: %w", err)
	}
	backoff = retry.WithMaxRetries(opts.Retries, backoff)

	statusURL := strings.TrimRight(baseURL, "/") + "/status"
	var lastErr error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		lastErr = probe(ctx, client, statusURL, opts.Timeout)
		return retry.RetryableError(lastErr)
	})
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return fmt.Errorf("%w at %s: %v\nStart it with: %s",
		ErrServerNotReady, baseURL, lastErr, opts.StartCommand)
}

func probe(ctx context.Context, client *http.Client, statusURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// ResetServer asks the peer server to drop shared state. It is best-effort:
// failures are logged and otherwise ignored.
func ResetServer(ctx context.Context, client *http.Client, baseURL string, log zerolog.Logger) {
	if client == nil {
		client = http.DefaultClient
	}
	resetURL := strings.TrimRight(baseURL, "/") + "/reset"
	if err := probe(ctx, client, resetURL, DefaultReadyOptions().Timeout); err != nil {
		log.Warn().Err(err).Str("url", resetURL).Msg("server reset failed")
		return
	}
	log.Debug().Str("url", resetURL).Msg("server reset")
}
