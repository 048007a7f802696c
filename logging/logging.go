// Package logging builds the zerolog loggers used by the client and the relay.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FileName is the client log inside the profile directory.
const FileName = "osa-chat.log"

// New returns a JSON logger writing to w at the given level. An empty or
// unknown level means info.
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewConsole returns a human-readable logger for interactive processes that
// do not own the terminal, such as the relay.
func NewConsole(w io.Writer, level string) zerolog.Logger {
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level)
}

// OpenFile opens (appending) <profileDir>/osa-chat.log and returns a logger
// on it together with the file to close on exit.
func OpenFile(profileDir, level string) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create profile dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(profileDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, level), f, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
