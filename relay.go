package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miosa/osa-chat/logging"
	"github.com/miosa/osa-chat/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run an in-memory chat backend for local development",
	RunE:  runRelay,
}

var (
	flagRelayAddr     string
	flagAvatars       map[string]string
	flagOrigins       []string
	flagRelayLogLevel string
)

func init() {
	flags := relayCmd.Flags()
	flags.StringVar(&flagRelayAddr, "addr", ":8080", "listen address")
	flags.StringToStringVar(&flagAvatars, "avatar", nil, "profile picture per user, e.g. --avatar alice=https://… (repeatable)")
	flags.StringSliceVar(&flagOrigins, "origin", nil, "allowed CORS/websocket origins (default: any)")
	flags.StringVar(&flagRelayLogLevel, "log-level", "info", "log level")
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewConsole(os.Stderr, flagRelayLogLevel)
	rs := relay.New(relay.Options{
		Avatars:        flagAvatars,
		AllowedOrigins: flagOrigins,
		Version:        version,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              flagRelayAddr,
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", flagRelayAddr).Msg("relay listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	rs.Close()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("relay shutdown")
	}
	logger.Info().Msg("relay stopped")
	return nil
}
