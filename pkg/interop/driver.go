package interop

import (
	"context"
	"encoding/json"
	"time"
)

// Driver launches browser processes for one or more engines.
type Driver interface {
	Launch(ctx context.Context, cfg LaunchConfig) (Browser, error)
}

// Browser is a launched browser process.
type Browser interface {
	// NewContext creates an isolated browsing context.
	NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error)
	Close() error
}

// ContextOptions configures a browsing context.
type ContextOptions struct {
	Permissions []string
}

// BrowserContext is an isolated browsing context (incognito profile).
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// ConsoleMessage is one console call made by page script.
type ConsoleMessage struct {
	Type string // log, info, warning, error, ...
	Text string
}

// Page is a single tab.
type Page interface {
	// OnConsole registers fn for console messages. It must be called before
	// Navigate for messages emitted during page load to be seen.
	OnConsole(fn func(ConsoleMessage))

	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Eval evaluates a JavaScript function expression in the page and
	// returns its result as JSON.
	Eval(ctx context.Context, js string) (json.RawMessage, error)

	Close() error
}

// Drivers maps each engine to the driver that launches it.
type Drivers map[Engine]Driver
