package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop"
	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop/pwdriver"
	"github.com/sjhorn/webrtc-dart-sub002/pkg/interop/rodriver"
)

const (
	driverRod        = "rod"
	driverPlaywright = "playwright"
)

// options is the resolved run configuration.
type options struct {
	Browser        string
	Scenario       string
	ServerURL      string
	Deadline       time.Duration
	Settle         time.Duration
	NavTimeout     time.Duration
	ChromiumDriver string
	MetricsFile    string
	ReadyRetries   uint64
	LogLevel       string
}

func newRootCmd(code *int) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "interop [browser|all]",
		Short: "Run a WebRTC interop scenario across browsers",
		Long: `Runs one scenario served by the peer server in each selected browser.

Browsers: ` + strings.Join(interop.BrowserIDs(), ", ") + `, or all.
Scenarios: ` + strings.Join(interop.ScenarioNames(), ", ") + `.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := run(cmd.Context(), loadOptions(v, args), cmd.OutOrStdout(), cmd.ErrOrStderr())
			*code = c
			return err
		},
	}

	addRunFlags(cmd.Flags())
	return cmd
}

func addRunFlags(f *pflag.FlagSet) {
	f.String("scenario", "datachannel", "scenario to run")
	f.String("server-url", "http://localhost:8080", "peer server base URL")
	f.Duration("deadline", 0, "result deadline per browser (0 uses the scenario timeout)")
	f.Duration("settle", interop.DefaultSettleDelay, "delay after a server reset between browsers")
	f.Duration("nav-timeout", interop.DefaultNavigationTimeout, "page navigation timeout")
	f.String("chromium-driver", driverRod, "driver for chrome: rod or playwright")
	f.String("metrics-file", "", "write run metrics in node-exporter textfile format to this path")
	f.Uint64("ready-retries", 0, "extra readiness probes before giving up")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("config", "", "optional config file (yaml, json or toml)")
}

// initConfig layers flags over INTEROP_* environment variables over the
// optional config file.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("interop")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindEnv("browser", "INTEROP_BROWSER", "BROWSER"); err != nil {
		return err
	}
	if err := v.BindEnv("server-url", "INTEROP_SERVER_URL", "SERVER_URL"); err != nil {
		return err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func loadOptions(v *viper.Viper, args []string) options {
	return options{
		Browser:        selectBrowser(args, v),
		Scenario:       v.GetString("scenario"),
		ServerURL:      v.GetString("server-url"),
		Deadline:       v.GetDuration("deadline"),
		Settle:         v.GetDuration("settle"),
		NavTimeout:     v.GetDuration("nav-timeout"),
		ChromiumDriver: strings.ToLower(v.GetString("chromium-driver")),
		MetricsFile:    v.GetString("metrics-file"),
		ReadyRetries:   v.GetUint64("ready-retries"),
		LogLevel:       v.GetString("log-level"),
	}
}

// selectBrowser picks the browser selection: the positional argument, then
// the environment, then all browsers.
func selectBrowser(args []string, v *viper.Viper) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	if b := strings.TrimSpace(v.GetString("browser")); b != "" {
		return b
	}
	return interop.AllBrowsers
}

func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger(), nil
}

// newDrivers wires one driver per engine. Playwright covers Firefox and
// WebKit; Chromium uses Rod unless asked otherwise.
func newDrivers(chromium string) (interop.Drivers, func() error, error) {
	pw, err := pwdriver.New()
	if err != nil {
		return nil, nil, err
	}
	drivers := interop.Drivers{
		interop.Firefox: pw,
		interop.WebKit:  pw,
	}

	switch chromium {
	case driverRod, "":
		rd, err := rodriver.New()
		if err != nil {
			return nil, nil, err
		}
		drivers[interop.Chromium] = rd
	case driverPlaywright:
		drivers[interop.Chromium] = pw
	default:
		return nil, nil, fmt.Errorf("unknown chromium driver %q (want %s or %s)", chromium, driverRod, driverPlaywright)
	}
	return drivers, pw.Close, nil
}

// run executes one scenario and returns the exit code.
func run(ctx context.Context, opts options, stdout, stderr io.Writer) (int, error) {
	log, err := newLogger(opts.LogLevel, stderr)
	if err != nil {
		return 1, err
	}

	matrix, err := interop.ResolveMatrix(opts.Browser)
	if err != nil {
		return 1, err
	}
	scenario, err := interop.LookupScenario(opts.Scenario)
	if err != nil {
		return 1, err
	}

	drivers, closeDrivers, err := newDrivers(opts.ChromiumDriver)
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := closeDrivers(); err != nil {
			log.Warn().Err(err).Msg("failed to stop playwright")
		}
	}()

	sessions := interop.NewSessionManager(drivers,
		interop.WithSessionLogger(log),
		interop.WithNavigationTimeout(opts.NavTimeout),
	)

	var metrics *interop.Metrics
	if opts.MetricsFile != "" {
		metrics = interop.NewMetrics()
	}

	ready := interop.DefaultReadyOptions()
	ready.Retries = opts.ReadyRetries

	coordinator, err := interop.NewCoordinator(sessions,
		interop.WithLogger(log),
		interop.WithMetrics(metrics),
		interop.WithSettleDelay(opts.Settle),
		interop.WithDeadline(opts.Deadline),
		interop.WithReadyOptions(ready),
		interop.WithOutput(stdout),
	)
	if err != nil {
		return 1, err
	}

	target := interop.RunTarget{BaseURL: opts.ServerURL, Scenario: scenario}
	fmt.Fprintf(stdout, "Running %s in %d browser(s) against %s\n", scenario.Name, len(matrix), opts.ServerURL)

	results, err := coordinator.Run(ctx, matrix, target)
	if err != nil {
		return 1, err
	}

	summary := interop.Summarize(results)
	interop.Render(stdout, summary, scenario)

	if metrics != nil {
		metrics.ObserveSummary(scenario.Name, summary)
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", opts.MetricsFile).Msg("failed to write metrics")
		}
	}
	return summary.ExitCode, nil
}
