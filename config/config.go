package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds persistent client settings stored at <profileDir>/osa-chat.json.
// Durations are stored in milliseconds.
type Config struct {
	BackendURL string `json:"backend_url,omitempty"`
	Theme      string `json:"theme,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`

	PollIntervalMs   int `json:"poll_interval_ms,omitempty"`
	DialTimeoutMs    int `json:"dial_timeout_ms,omitempty"`
	RequestTimeoutMs int `json:"request_timeout_ms,omitempty"`

	// ReconnectAttempts of 0 disables automatic reconnection. A negative
	// value in the file is treated as 0.
	ReconnectAttempts    *int `json:"reconnect_attempts,omitempty"`
	ReconnectBaseDelayMs int  `json:"reconnect_base_delay_ms,omitempty"`
	ReconnectMaxDelayMs  int  `json:"reconnect_max_delay_ms,omitempty"`

	// Follow is "always" or "near-bottom".
	Follow         string `json:"follow,omitempty"`
	NearBottomRows int    `json:"near_bottom_rows,omitempty"`
}

// Filename is the settings file inside a profile directory.
const Filename = "osa-chat.json"

// Environment overrides.
const (
	EnvURL          = "OSA_CHAT_URL"
	EnvTheme        = "OSA_CHAT_THEME"
	EnvFollow       = "OSA_CHAT_FOLLOW"
	EnvLogLevel     = "OSA_CHAT_LOG_LEVEL"
	EnvPollInterval = "OSA_CHAT_POLL_INTERVAL_MS"
)

// Load reads <profileDir>/osa-chat.json merged over the defaults. If the file
// is absent or unreadable, the defaults are returned.
func Load(profileDir string) Config {
	cfg := defaults()
	data, err := os.ReadFile(filepath.Join(profileDir, Filename))
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaults()
	}
	return cfg.normalized()
}

// LoadEnv is Load followed by environment overrides. A .env file in the
// working directory is read first when present; variables already set in the
// process environment win over it.
func LoadEnv(profileDir string) Config {
	_ = godotenv.Load()
	return Load(profileDir).withEnv(os.Getenv)
}

// Save writes cfg to <profileDir>/osa-chat.json, creating the directory if
// needed.
func Save(profileDir string, cfg Config) error {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(profileDir, Filename), data, 0o644)
}

func defaults() Config {
	attempts := 5
	return Config{
		BackendURL:           "http://localhost:8080",
		Theme:                "dark",
		LogLevel:             "info",
		PollIntervalMs:       5000,
		DialTimeoutMs:        10000,
		RequestTimeoutMs:     10000,
		ReconnectAttempts:    &attempts,
		ReconnectBaseDelayMs: 1000,
		ReconnectMaxDelayMs:  30000,
		Follow:               "always",
		NearBottomRows:       3,
	}
}

func (c Config) withEnv(getenv func(string) string) Config {
	if v := strings.TrimSpace(getenv(EnvURL)); v != "" {
		c.BackendURL = v
	}
	if v := strings.TrimSpace(getenv(EnvTheme)); v != "" {
		c.Theme = v
	}
	if v := strings.TrimSpace(getenv(EnvFollow)); v != "" {
		c.Follow = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvPollInterval)); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.PollIntervalMs = ms
		}
	}
	return c
}

// normalized fills zero values left by a partial file.
func (c Config) normalized() Config {
	d := defaults()
	if c.BackendURL == "" {
		c.BackendURL = d.BackendURL
	}
	if c.Theme == "" {
		c.Theme = d.Theme
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = d.PollIntervalMs
	}
	if c.DialTimeoutMs <= 0 {
		c.DialTimeoutMs = d.DialTimeoutMs
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = d.RequestTimeoutMs
	}
	if c.ReconnectAttempts == nil {
		c.ReconnectAttempts = d.ReconnectAttempts
	} else if *c.ReconnectAttempts < 0 {
		zero := 0
		c.ReconnectAttempts = &zero
	}
	if c.ReconnectBaseDelayMs <= 0 {
		c.ReconnectBaseDelayMs = d.ReconnectBaseDelayMs
	}
	if c.ReconnectMaxDelayMs <= 0 {
		c.ReconnectMaxDelayMs = d.ReconnectMaxDelayMs
	}
	if c.NearBottomRows <= 0 {
		c.NearBottomRows = d.NearBottomRows
	}
	return c
}

func (c Config) PollInterval() time.Duration   { return ms(c.PollIntervalMs) }
func (c Config) DialTimeout() time.Duration    { return ms(c.DialTimeoutMs) }
func (c Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }
func (c Config) ReconnectBaseDelay() time.Duration {
	return ms(c.ReconnectBaseDelayMs)
}
func (c Config) ReconnectMaxDelay() time.Duration {
	return ms(c.ReconnectMaxDelayMs)
}

// Reconnects returns the automatic reconnect budget.
func (c Config) Reconnects() int {
	if c.ReconnectAttempts == nil || *c.ReconnectAttempts < 0 {
		return 0
	}
	return *c.ReconnectAttempts
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
