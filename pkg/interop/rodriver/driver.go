// Package rodriver drives Chromium through the DevTools protocol with Rod.
package rodriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop"
)

// Option configures a Driver.
type Option func(*Driver) error

// WithBin uses the Chromium binary at path instead of the one Rod downloads.
func WithBin(path string) Option {
	return func(d *Driver) error {
		if path == "" {
			return fmt.Errorf("empty browser binary path")
		}
		d.bin = path
		return nil
	}
}

// Driver launches Chromium with Rod. It is safe for concurrent use.
type Driver struct {
	bin string
}

// New creates a Driver.
func New(opts ...Option) (*Driver, error) {
	d := &Driver{}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Launch starts a Chromium process configured by cfg.
func (d *Driver) Launch(ctx context.Context, cfg interop.LaunchConfig) (interop.Browser, error) {
	if cfg.Engine != interop.Chromium {
		return nil, fmt.Errorf("rod drives chromium only, got %s", cfg.Engine)
	}

	l := newLauncher(cfg, d.bin)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}
	return &browser{rod: b.Context(context.Background()), launcher: l}, nil
}

// newLauncher translates cfg into launcher flags.
func newLauncher(cfg interop.LaunchConfig, bin string) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless)
	if bin != "" {
		l = l.Bin(bin)
	}
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		if name == "" {
			continue
		}
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}
	return l
}

// splitArg turns "--name=value" into ("name", "value").
func splitArg(arg string) (string, string) {
	arg = strings.TrimLeft(arg, "-")
	name, value, _ := strings.Cut(arg, "=")
	return name, value
}

var permissionTypes = map[string]proto.BrowserPermissionType{
	interop.PermissionCamera:     proto.BrowserPermissionTypeVideoCapture,
	interop.PermissionMicrophone: proto.BrowserPermissionTypeAudioCapture,
}

func translatePermissions(perms []string) ([]proto.BrowserPermissionType, error) {
	out := make([]proto.BrowserPermissionType, 0, len(perms))
	for _, p := range perms {
		t, ok := permissionTypes[p]
		if !ok {
			return nil, fmt.Errorf("unsupported permission %q", p)
		}
		out = append(out, t)
	}
	return out, nil
}

type browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
}

// NewContext opens an incognito context and grants the requested
// permissions on it.
func (b *browser) NewContext(ctx context.Context, opts interop.ContextOptions) (interop.BrowserContext, error) {
	perms, err := translatePermissions(opts.Permissions)
	if err != nil {
		return nil, err
	}

	incognito, err := b.rod.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	incognito = incognito.Context(context.Background())

	if len(perms) > 0 {
		err := proto.BrowserGrantPermissions{
			Permissions:      perms,
			BrowserContextID: incognito.BrowserContextID,
		}.Call(b.rod.Context(ctx))
		if err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("failed to grant permissions: %w", err)
		}
	}
	return &browserContext{rod: incognito}, nil
}

func (b *browser) Close() error {
	err := b.rod.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}

type browserContext struct {
	rod *rod.Browser
}

func (c *browserContext) NewPage(ctx context.Context) (interop.Page, error) {
	p, err := c.rod.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	eventsCtx, cancel := context.WithCancel(context.Background())
	return &page{rod: p.Context(context.Background()), eventsCtx: eventsCtx, cancel: cancel}, nil
}

// Close disposes of the incognito context.
func (c *browserContext) Close() error {
	return c.rod.Close()
}

type page struct {
	rod *rod.Page

	eventsCtx context.Context
	cancel    context.CancelFunc
	once      sync.Once
}

func (p *page) OnConsole(fn func(interop.ConsoleMessage)) {
	wait := p.rod.Context(p.eventsCtx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		fn(interop.ConsoleMessage{Type: string(e.Type), Text: consoleText(e.Args)})
	})
	go wait()
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	pg, cancel := bounded(ctx, p.rod, timeout)
	defer cancel()
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

// bounded returns p limited to timeout under ctx, and the func that stops
// the timeout timer.
func bounded(ctx context.Context, p *rod.Page, timeout time.Duration) (*rod.Page, func()) {
	pg := p.Context(ctx).Timeout(timeout)
	return pg, func() { pg.CancelTimeout() }
}

func (p *page) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := p.rod.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

func (p *page) Close() error {
	p.once.Do(p.cancel)
	return p.rod.Close()
}

// consoleText joins console arguments the way the DevTools console prints
// them.
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
