// Peer Server
//
// Serves the interop test page and answers the browser side of every
// scenario with a Pion WebRTC peer: data channel echo, server-created
// offers, and video reception with per-peer RTP counters. Run it before
// cmd/interop, or open http://localhost:8080/?scenario=datachannel in any
// browser to watch a scenario by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sjhorn/webrtc-dart-sub002/cmd/peer-server/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "peer-server: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "peer-server",
		Short:         "Run the WebRTC interop peer server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("peer")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(v)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Duration("pli-interval", time.Second, "keyframe request interval for received video (0 disables)")
	f.Bool("loopback", true, "gather ICE candidates on loopback interfaces")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func serve(v *viper.Viper) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(v.GetString("log-level")))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()

	cfg := server.DefaultConfig()
	cfg.Addr = v.GetString("addr")
	cfg.PLIInterval = v.GetDuration("pli-interval")
	cfg.IncludeLoopback = v.GetBool("loopback")
	cfg.Logger = log

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	addr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf(`
WebRTC Interop Peer Server
==========================
Listening on %s

Run the harness:   go run ./cmd/interop [chrome|firefox|safari|all]
Try a scenario:    http://localhost%s/?scenario=datachannel
`, addr, portOf(addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// portOf returns the ":port" suffix of a listen address.
func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}
