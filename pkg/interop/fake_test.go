package interop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeDriver is a scripted Driver. Every knob applies to every browser it
// launches.
type fakeDriver struct {
	launchErr  error
	contextErr error
	pageErr    error
	navErr     error

	contextPanics bool
	pagePanics    bool

	pageCloseErr    error
	pageClosePanics bool
	contextCloseErr error
	browserCloseErr error

	// result is what the slot holds once readyAfter has elapsed since
	// navigation. A nil result means the slot is never populated.
	result     json.RawMessage
	readyAfter time.Duration
	evalErr    error

	console []ConsoleMessage

	mu       sync.Mutex
	launches []LaunchConfig
	browsers []*fakeBrowser
}

func (d *fakeDriver) Launch(_ context.Context, cfg LaunchConfig) (Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches = append(d.launches, cfg)
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	b := &fakeBrowser{driver: d}
	d.browsers = append(d.browsers, b)
	return b, nil
}

func (d *fakeDriver) launchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.launches)
}

func (d *fakeDriver) lastBrowser() *fakeBrowser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.browsers) == 0 {
		return nil
	}
	return d.browsers[len(d.browsers)-1]
}

type fakeBrowser struct {
	driver  *fakeDriver
	context *fakeContext

	mu     sync.Mutex
	closed int
}

func (b *fakeBrowser) NewContext(_ context.Context, opts ContextOptions) (BrowserContext, error) {
	if b.driver.contextPanics {
		panic("target crashed")
	}
	if b.driver.contextErr != nil {
		return nil, b.driver.contextErr
	}
	b.context = &fakeContext{driver: b.driver, opts: opts}
	return b.context, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return b.driver.browserCloseErr
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeContext struct {
	driver *fakeDriver
	opts   ContextOptions
	page   *fakePage

	mu     sync.Mutex
	closed int
}

func (c *fakeContext) NewPage(_ context.Context) (Page, error) {
	if c.driver.pagePanics {
		panic("target crashed")
	}
	if c.driver.pageErr != nil {
		return nil, c.driver.pageErr
	}
	c.page = &fakePage{driver: c.driver}
	return c.page, nil
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return c.driver.contextCloseErr
}

func (c *fakeContext) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakePage struct {
	driver *fakeDriver

	mu          sync.Mutex
	onConsole   func(ConsoleMessage)
	navigatedTo string
	navigatedAt time.Time
	evals       int
	closed      int
}

func (p *fakePage) OnConsole(fn func(ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConsole = fn
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	fn := p.onConsole
	p.navigatedTo = url
	p.navigatedAt = time.Now()
	p.mu.Unlock()

	if p.driver.navErr != nil {
		return p.driver.navErr
	}
	if fn != nil {
		for _, msg := range p.driver.console {
			fn(msg)
		}
	}
	return nil
}

func (p *fakePage) Eval(_ context.Context, _ string) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals++
	if p.driver.evalErr != nil {
		return nil, p.driver.evalErr
	}
	if p.driver.result == nil || time.Since(p.navigatedAt) < p.driver.readyAfter {
		return json.RawMessage("null"), nil
	}
	return p.driver.result, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	if p.driver.pageClosePanics {
		panic("page already detached")
	}
	return p.driver.pageCloseErr
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) evalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evals
}

// readyPage is a Page with the slot already populated, for AwaitResult tests
// that do not go through a session.
func readyPage(result string, after time.Duration) *fakePage {
	p := &fakePage{driver: &fakeDriver{readyAfter: after}, navigatedAt: time.Now()}
	if result != "" {
		p.driver.result = json.RawMessage(result)
	}
	return p
}

var errBoom = errors.New("boom")
