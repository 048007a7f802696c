package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/miosa/osa-chat/app"
	"github.com/miosa/osa-chat/attention"
	"github.com/miosa/osa-chat/client"
	"github.com/miosa/osa-chat/config"
	"github.com/miosa/osa-chat/engine"
	"github.com/miosa/osa-chat/logging"
	"github.com/miosa/osa-chat/markdown"
	"github.com/miosa/osa-chat/session"
	"github.com/miosa/osa-chat/style"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "osa-chat",
	Short:         "Terminal client for the OSA realtime chat",
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("osa-chat %s\n", version)
	},
}

var (
	flagProfile     string
	flagURL         string
	flagToken       string
	flagUsername    string
	flagNoColor     bool
	flagMetricsAddr string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagProfile, "profile", "", "named profile for state isolation (~/.osa-chat/profiles/<name>)")
	flags.StringVar(&flagURL, "url", "", "backend base URL (overrides config and "+config.EnvURL+")")
	flags.StringVar(&flagToken, "token", "", "bearer token; saved to the profile together with --username")
	flags.StringVar(&flagUsername, "username", "", "username to chat as")
	flags.BoolVar(&flagNoColor, "no-color", false, "disable ANSI colors")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9091)")

	rootCmd.AddCommand(versionCmd, relayCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("osa-chat")
	}
}

func profileDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if name == "" {
		return filepath.Join(home, ".osa-chat")
	}
	return filepath.Join(home, ".osa-chat", "profiles", name)
}

func runChat(cmd *cobra.Command, args []string) error {
	dir := profileDir(flagProfile)
	cfg := config.LoadEnv(dir)
	if flagURL != "" {
		cfg.BackendURL = flagURL
	}

	logger, logFile, err := logging.OpenFile(dir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger = logger.With().Str("profile", flagProfile).Logger()

	store := session.Store{Dir: dir}
	sess, err := resolveSession(store, logger)
	if err != nil {
		return err
	}

	applyTheme(cfg.Theme)

	if flagMetricsAddr != "" {
		srv := &http.Server{Addr: flagMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	backend := client.New(cfg.BackendURL)
	backend.SetToken(sess.Token)
	backend.HTTPClient.Timeout = cfg.RequestTimeout()

	eng := engine.New(sess, client.NewWSTransport(cfg.BackendURL), backend, engineConfig(cfg), logger)
	defer eng.Close()

	m := app.New(app.Options{
		Engine:         eng,
		Store:          store,
		Health:         backend,
		Username:       sess.Username,
		Backend:        cfg.BackendURL,
		Version:        version,
		Follow:         attention.ParsePolicy(cfg.Follow),
		NearBottomRows: cfg.NearBottomRows,
		Logger:         logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// resolveSession loads the stored session and applies --token/--username.
// When both flags are given they are saved for later runs. A missing
// session is not an error here; the UI reports it.
func resolveSession(store session.Store, logger zerolog.Logger) (session.Session, error) {
	sess, err := store.Load()
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}
	if flagToken != "" {
		sess.Token = flagToken
	}
	if flagUsername != "" {
		sess.Username = flagUsername
	}
	if flagToken != "" && flagUsername != "" {
		if err := store.Save(sess); err != nil {
			logger.Warn().Err(err).Msg("save session")
		}
	}
	return sess, nil
}

func engineConfig(cfg config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.PollInterval = cfg.PollInterval()
	ec.DialTimeout = cfg.DialTimeout()
	ec.RequestTimeout = cfg.RequestTimeout()
	ec.Reconnect = engine.ReconnectPolicy{
		MaxAttempts: cfg.Reconnects(),
		BaseDelay:   cfg.ReconnectBaseDelay(),
		MaxDelay:    cfg.ReconnectMaxDelay(),
	}
	return ec
}

// applyTheme picks the palette and the matching markdown style. "auto"
// follows the terminal background.
func applyTheme(name string) {
	if flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		markdown.SetStyle("notty")
		return
	}
	if name == "" || name == "auto" {
		name = "light"
		if lipgloss.HasDarkBackground() {
			name = "dark"
		}
	}
	if !style.SetTheme(name) {
		style.SetTheme("dark")
	}
	if style.CurrentThemeName == "light" {
		markdown.SetStyle("light")
	} else {
		markdown.SetStyle("dark")
	}
}
