// Package pwdriver drives Chromium, Firefox and WebKit with Playwright.
//
// The Playwright driver process is started on first launch and stopped by
// Close. Browser binaries must be installed beforehand:
//
//	go run github.com/playwright-community/playwright-go/cmd/playwright install chromium firefox webkit
package pwdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop"
)

// Option configures a Driver.
type Option func(*Driver) error

// WithRunOptions sets the options used to start the Playwright driver.
func WithRunOptions(opts *playwright.RunOptions) Option {
	return func(d *Driver) error {
		if opts == nil {
			return fmt.Errorf("nil run options")
		}
		d.runOpts = opts
		return nil
	}
}

// Driver launches browsers through one shared Playwright driver process.
type Driver struct {
	runOpts *playwright.RunOptions

	mu  sync.Mutex
	pw  *playwright.Playwright
	err error
}

// New creates a Driver. No process is started until the first Launch.
func New(opts ...Option) (*Driver, error) {
	d := &Driver{}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil && d.err == nil {
		var runOpts []*playwright.RunOptions
		if d.runOpts != nil {
			runOpts = append(runOpts, d.runOpts)
		}
		d.pw, d.err = playwright.Run(runOpts...)
		if d.err != nil {
			d.err = fmt.Errorf("failed to start playwright: %w", d.err)
		}
	}
	return d.pw, d.err
}

// Launch starts the browser engine named by cfg.
func (d *Driver) Launch(ctx context.Context, cfg interop.LaunchConfig) (interop.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.start()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, cfg.Engine)
	if err != nil {
		return nil, err
	}
	b, err := bt.Launch(launchOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Engine, err)
	}
	return &browser{pw: b}, nil
}

// Close stops the Playwright driver process.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

func browserType(pw *playwright.Playwright, e interop.Engine) (playwright.BrowserType, error) {
	switch e {
	case interop.Chromium:
		return pw.Chromium, nil
	case interop.Firefox:
		return pw.Firefox, nil
	case interop.WebKit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported engine %s", e)
	}
}

// launchOptions maps cfg onto Playwright launch options. Prefs only apply
// to Firefox, where they are user prefs written before launch.
func launchOptions(cfg interop.LaunchConfig) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	}
	if len(cfg.Args) > 0 {
		opts.Args = append([]string(nil), cfg.Args...)
	}
	if cfg.Engine == interop.Firefox && len(cfg.Prefs) > 0 {
		opts.FirefoxUserPrefs = make(map[string]interface{}, len(cfg.Prefs))
		for k, v := range cfg.Prefs {
			opts.FirefoxUserPrefs[k] = v
		}
	}
	return opts
}

func contextOptions(opts interop.ContextOptions) playwright.BrowserNewContextOptions {
	var out playwright.BrowserNewContextOptions
	if len(opts.Permissions) > 0 {
		out.Permissions = append([]string(nil), opts.Permissions...)
	}
	return out
}

type browser struct {
	pw playwright.Browser
}

func (b *browser) NewContext(ctx context.Context, opts interop.ContextOptions) (interop.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := b.pw.NewContext(contextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &browserContext{pw: c}, nil
}

func (b *browser) Close() error {
	return b.pw.Close()
}

type browserContext struct {
	pw playwright.BrowserContext
}

func (c *browserContext) NewPage(ctx context.Context) (interop.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.pw.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &page{pw: p}, nil
}

func (c *browserContext) Close() error {
	return c.pw.Close()
}

type page struct {
	pw playwright.Page
}

func (p *page) OnConsole(fn func(interop.ConsoleMessage)) {
	p.pw.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(interop.ConsoleMessage{Type: msg.Type(), Text: msg.Text()})
	})
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.pw.Goto(url, gotoOptions(timeout))
	return err
}

func gotoOptions(timeout time.Duration) playwright.PageGotoOptions {
	return playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateLoad,
	}
}

func (p *page) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.pw.Evaluate(js)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode eval result: %w", err)
	}
	return raw, nil
}

func (p *page) Close() error {
	return p.pw.Close()
}
