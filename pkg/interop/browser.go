package interop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownBrowser is returned for a browser id with no BrowserSpec.
var ErrUnknownBrowser = errors.New("unknown browser")

// AllBrowsers selects every supported browser.
const AllBrowsers = "all"

// Engine identifies a browser engine family.
type Engine int

const (
	Chromium Engine = iota
	Firefox
	WebKit
)

// String returns the engine name.
func (e Engine) String() string {
	switch e {
	case Chromium:
		return "chromium"
	case Firefox:
		return "firefox"
	case WebKit:
		return "webkit"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// Context permission names. Drivers translate them to their own vocabulary.
const (
	PermissionCamera     = "camera"
	PermissionMicrophone = "microphone"
)

// LaunchConfig is the declarative launch configuration of an engine variant.
type LaunchConfig struct {
	Engine   Engine
	Headless bool

	// Args are engine command-line switches in "--name" or "--name=value" form.
	Args []string

	// Permissions are granted on the browsing context. Only engines that
	// require explicit grants list any.
	Permissions []string

	// Prefs are engine preference overrides.
	Prefs map[string]any

	// PrelaunchPrefs marks Prefs as honoured only when supplied at launch.
	PrelaunchPrefs bool
}

// Capability is a static engine capability a scenario may depend on.
type Capability string

const (
	// CapHeadlessMedia means getUserMedia works in headless mode.
	CapHeadlessMedia Capability = "headless-media"

	// CapAnswerServerOffer means the engine completes the handshake when it
	// answers an offer created by the peer server.
	CapAnswerServerOffer Capability = "answer-server-offer"
)

// BrowserSpec describes one supported browser. Specs are immutable.
type BrowserSpec struct {
	ID     string
	Engine Engine
	Launch LaunchConfig

	// Missing lists capabilities the browser lacks, with the skip reason.
	Missing map[Capability]string
}

// Lacks returns the skip reason when the browser lacks c.
func (b BrowserSpec) Lacks(c Capability) (string, bool) {
	reason, ok := b.Missing[c]
	return reason, ok && reason != ""
}

// launchConfigs holds the launch configuration of each engine variant.
var launchConfigs = map[Engine]LaunchConfig{
	Chromium: {
		Engine:   Chromium,
		Headless: true,
		Args: []string{
			"--no-sandbox",
			"--disable-gpu",
			"--use-fake-device-for-media-stream",
			"--use-fake-ui-for-media-stream",
			"--autoplay-policy=no-user-gesture-required",
		},
		Permissions: []string{PermissionCamera, PermissionMicrophone},
	},
	Firefox: {
		Engine:   Firefox,
		Headless: true,
		Prefs: map[string]any{
			"media.navigator.streams.fake":        true,
			"media.navigator.permission.disabled": true,
			"media.autoplay.default":              0,
			"media.peerconnection.ice.loopback":   true,
		},
		PrelaunchPrefs: true,
	},
	WebKit: {
		Engine:   WebKit,
		Headless: true,
	},
}

// ResolveLaunchConfig returns a copy of the launch configuration for an engine.
func ResolveLaunchConfig(e Engine) (LaunchConfig, error) {
	cfg, ok := launchConfigs[e]
	if !ok {
		return LaunchConfig{}, fmt.Errorf("no launch configuration for %s", e)
	}
	cfg.Args = append([]string(nil), cfg.Args...)
	cfg.Permissions = append([]string(nil), cfg.Permissions...)
	if cfg.Prefs != nil {
		prefs := make(map[string]any, len(cfg.Prefs))
		for k, v := range cfg.Prefs {
			prefs[k] = v
		}
		cfg.Prefs = prefs
	}
	return cfg, nil
}

// browserOrder is the matrix order used for "all".
var browserOrder = []string{"chrome", "firefox", "safari"}

var browserEngines = map[string]Engine{
	"chrome":  Chromium,
	"firefox": Firefox,
	"safari":  WebKit,
}

var browserAliases = map[string]string{
	"chromium": "chrome",
	"webkit":   "safari",
}

var browserMissing = map[string]map[Capability]string{
	"firefox": {
		CapAnswerServerOffer: "known handshake ordering issue when Firefox answers a server offer",
	},
	"safari": {
		CapHeadlessMedia: "getUserMedia unsupported in headless WebKit",
	},
}

// ResolveBrowser returns the BrowserSpec for a browser id or alias.
func ResolveBrowser(id string) (BrowserSpec, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := browserAliases[id]; ok {
		id = canonical
	}
	engine, ok := browserEngines[id]
	if !ok {
		return BrowserSpec{}, fmt.Errorf("%w %q (supported: %s, %s)",
			ErrUnknownBrowser, id, strings.Join(BrowserIDs(), ", "), AllBrowsers)
	}
	cfg, err := ResolveLaunchConfig(engine)
	if err != nil {
		return BrowserSpec{}, err
	}
	return BrowserSpec{
		ID:      id,
		Engine:  engine,
		Launch:  cfg,
		Missing: browserMissing[id],
	}, nil
}

// ResolveMatrix returns the browser matrix for a selection, which is either
// a single browser id or "all".
func ResolveMatrix(selection string) ([]BrowserSpec, error) {
	selection = strings.ToLower(strings.TrimSpace(selection))
	if selection == "" || selection == AllBrowsers {
		matrix := make([]BrowserSpec, 0, len(browserOrder))
		for _, id := range browserOrder {
			spec, err := ResolveBrowser(id)
			if err != nil {
				return nil, err
			}
			matrix = append(matrix, spec)
		}
		return matrix, nil
	}
	spec, err := ResolveBrowser(selection)
	if err != nil {
		return nil, err
	}
	return []BrowserSpec{spec}, nil
}

// BrowserIDs returns the supported browser ids, sorted.
func BrowserIDs() []string {
	ids := make([]string, 0, len(browserEngines))
	for id := range browserEngines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
