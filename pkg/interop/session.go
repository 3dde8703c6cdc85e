package interop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

const (
	// ResultConsolePrefix marks console messages that carry the result
	// object. They are consumed through the result slot, not printed.
	ResultConsolePrefix = "TEST_RESULT:"

	// DefaultNavigationTimeout bounds page navigation.
	DefaultNavigationTimeout = 10 * time.Second
)

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionLogger sets the logger used for console passthrough and
// teardown diagnostics.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(m *SessionManager) {
		m.log = log
	}
}

// WithNavigationTimeout sets the page navigation timeout.
func WithNavigationTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.navTimeout = d
		}
	}
}

// SessionManager owns the launch and teardown of browser sessions.
type SessionManager struct {
	drivers    Drivers
	log        zerolog.Logger
	navTimeout time.Duration
}

// NewSessionManager creates a SessionManager over the given drivers.
func NewSessionManager(drivers Drivers, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		drivers:    drivers,
		log:        zerolog.Nop(),
		navTimeout: DefaultNavigationTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session is one browser process with its context and page. A session is
// owned by a single attempt and never reused.
type Session struct {
	Spec    BrowserSpec
	Browser Browser
	Context BrowserContext
	Page    Page

	releaseOnce sync.Once
}

// Launch starts the browser for spec and opens an isolated context and page
// with the console listener attached. On failure or panic everything
// launched so far is released before Launch returns.
func (m *SessionManager) Launch(ctx context.Context, spec BrowserSpec) (*Session, error) {
	driver, ok := m.drivers[spec.Engine]
	if !ok || driver == nil {
		return nil, fmt.Errorf("no driver for engine %s", spec.Engine)
	}

	browser, err := driver.Launch(ctx, spec.Launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", spec.ID, err)
	}
	s := &Session{Spec: spec, Browser: browser}
	launched := false
	defer func() {
		if !launched {
			m.Release(s)
		}
	}()

	s.Context, err = browser.NewContext(ctx, ContextOptions{Permissions: spec.Launch.Permissions})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	s.Page, err = s.Context.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	log := m.log.With().Str("browser", spec.ID).Logger()
	s.Page.OnConsole(func(msg ConsoleMessage) {
		if strings.HasPrefix(msg.Text, ResultConsolePrefix) {
			return
		}
		log.Info().Str("console", msg.Type).Msg(msg.Text)
	})

	launched = true
	return s, nil
}

// Navigate loads the scenario page for the session's browser.
func (m *SessionManager) Navigate(ctx context.Context, s *Session, target RunTarget) error {
	u, err := target.PageURL(s.Spec.ID)
	if err != nil {
		return err
	}
	m.log.Debug().Str("browser", s.Spec.ID).Str("url", u).Msg("navigating")
	if err := s.Page.Navigate(ctx, u, m.navTimeout); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", u, err)
	}
	return nil
}

// Acquire launches a session and navigates it to the target page. On any
// failure the partial session is released before returning.
//
// Acquire is for callers that do not track attempt states; the Coordinator
// calls Launch and Navigate itself so it can log the transition between them.
func (m *SessionManager) Acquire(ctx context.Context, spec BrowserSpec, target RunTarget) (*Session, error) {
	s, err := m.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := m.Navigate(ctx, s, target); err != nil {
		m.Release(s)
		return nil, err
	}
	return s, nil
}

// Release closes the page, context and browser of s. Each close runs even if
// an earlier one failed; failures are logged and never returned. Releasing a
// session more than once is a no-op.
func (m *SessionManager) Release(s *Session) {
	if s == nil {
		return
	}
	s.releaseOnce.Do(func() {
		var result *multierror.Error
		if s.Page != nil {
			result = multierror.Append(result, closeGuarded("page", s.Page.Close))
		}
		if s.Context != nil {
			result = multierror.Append(result, closeGuarded("context", s.Context.Close))
		}
		if s.Browser != nil {
			result = multierror.Append(result, closeGuarded("browser", s.Browser.Close))
		}
		if err := result.ErrorOrNil(); err != nil {
			m.log.Debug().Err(err).Str("browser", s.Spec.ID).Msg("teardown errors ignored")
		}
	})
}

// closeGuarded runs fn, turning a panic into an error.
func closeGuarded(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close %s: panic: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("close %s: %w", what, err)
	}
	return nil
}
