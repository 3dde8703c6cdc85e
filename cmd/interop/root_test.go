package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop"
)

// parse runs the root command's flag and config handling without running a
// scenario, returning the resolved options.
func parse(t *testing.T, args ...string) options {
	t.Helper()
	var code int
	cmd := newRootCmd(&code)
	var got options
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		require.NoError(t, initConfig(v, cmd))
		got = loadOptions(v, args)
		return nil
	}
	cmd.PersistentPreRunE = nil
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return got
}

func TestSelectBrowser_Precedence(t *testing.T) {
	t.Setenv("INTEROP_BROWSER", "")
	t.Setenv("BROWSER", "")
	assert.Equal(t, interop.AllBrowsers, parse(t).Browser)

	t.Setenv("BROWSER", "safari")
	assert.Equal(t, "safari", parse(t).Browser)

	t.Setenv("INTEROP_BROWSER", "firefox")
	assert.Equal(t, "firefox", parse(t).Browser, "INTEROP_BROWSER wins over BROWSER")

	assert.Equal(t, "chrome", parse(t, "chrome").Browser, "positional argument wins over env")
}

func TestOptions_Defaults(t *testing.T) {
	t.Setenv("SERVER_URL", "")
	t.Setenv("INTEROP_SERVER_URL", "")

	opts := parse(t)
	assert.Equal(t, "datachannel", opts.Scenario)
	assert.Equal(t, "http://localhost:8080", opts.ServerURL)
	assert.Equal(t, time.Duration(0), opts.Deadline)
	assert.Equal(t, interop.DefaultSettleDelay, opts.Settle)
	assert.Equal(t, interop.DefaultNavigationTimeout, opts.NavTimeout)
	assert.Equal(t, driverRod, opts.ChromiumDriver)
	assert.Equal(t, "info", opts.LogLevel)
}

func TestOptions_EnvAndFlags(t *testing.T) {
	t.Setenv("SERVER_URL", "http://peer:9000")
	t.Setenv("INTEROP_SCENARIO", "media")
	t.Setenv("INTEROP_READY_RETRIES", "3")

	opts := parse(t)
	assert.Equal(t, "http://peer:9000", opts.ServerURL)
	assert.Equal(t, "media", opts.Scenario)
	assert.Equal(t, uint64(3), opts.ReadyRetries)

	opts = parse(t, "--scenario", "server-offer", "--server-url", "http://127.0.0.1:1", "--deadline", "5s")
	assert.Equal(t, "server-offer", opts.Scenario, "flags win over env")
	assert.Equal(t, "http://127.0.0.1:1", opts.ServerURL)
	assert.Equal(t, 5*time.Second, opts.Deadline)
}

func TestOptions_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenario: multi-client\nsettle: 2s\n"), 0o600))

	opts := parse(t, "--config", path)
	assert.Equal(t, "multi-client", opts.Scenario)
	assert.Equal(t, 2*time.Second, opts.Settle)
}

// testContext mirrors testing.T.Context (Go 1.24+) for older toolchains: the
// returned context is canceled when the test's cleanup runs.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func TestRun_ServerNotReady(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var stdout, stderr bytes.Buffer
	code, err := run(testContext(t), options{
		Browser:   "chrome",
		Scenario:  "datachannel",
		ServerURL: url,
		LogLevel:  "info",
	}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	require.ErrorIs(t, err, interop.ErrServerNotReady)
	assert.Contains(t, err.Error(), "Start it with")
}

func TestRun_InvalidInput(t *testing.T) {
	base := options{Browser: "chrome", Scenario: "datachannel", LogLevel: "info", ServerURL: "http://localhost:1"}

	tests := []struct {
		name   string
		mutate func(*options)
		want   error
	}{
		{name: "unknown browser", mutate: func(o *options) { o.Browser = "netscape" }, want: interop.ErrUnknownBrowser},
		{name: "unknown scenario", mutate: func(o *options) { o.Scenario = "renegotiation" }, want: interop.ErrUnknownScenario},
		{name: "bad log level", mutate: func(o *options) { o.LogLevel = "loud" }},
		{name: "bad chromium driver", mutate: func(o *options) { o.ChromiumDriver = "selenium" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			var out bytes.Buffer
			code, err := run(testContext(t), opts, &out, &out)
			assert.Equal(t, 1, code)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestExecute_UnknownBrowserExitsNonZero(t *testing.T) {
	assert.Equal(t, 1, execute([]string{"netscape", "--server-url", "http://localhost:1"}))
}

func TestExecute_TooManyArgs(t *testing.T) {
	assert.Equal(t, 1, execute([]string{"chrome", "firefox"}))
}
