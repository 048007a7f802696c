// Package session holds the authenticated identity the engine runs under and
// persists it in the profile directory.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/miosa/osa-chat/chat"
)

// Session is an authenticated identity. It is a value: changing identity
// means building a new engine with a new Session.
type Session struct {
	Token    string
	Username string
}

// Validate returns chat.ErrUnauthenticated when the token or the username is
// missing.
func (s Session) Validate() error {
	if strings.TrimSpace(s.Token) == "" {
		return fmt.Errorf("%w: no token", chat.ErrUnauthenticated)
	}
	if strings.TrimSpace(s.Username) == "" {
		return fmt.Errorf("%w: no username", chat.ErrUnauthenticated)
	}
	return nil
}

const (
	tokenFile    = "token"
	usernameFile = "username"
)

// Store keeps a Session as two files in a profile directory.
type Store struct {
	Dir string
}

// Load reads the stored session. Missing files yield empty fields, not an
// error; call Validate on the result.
func (s Store) Load() (Session, error) {
	token, err := s.read(tokenFile)
	if err != nil {
		return Session{}, err
	}
	username, err := s.read(usernameFile)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Username: username}, nil
}

// Save writes sess with owner-only permissions.
func (s Store) Save(sess Session) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, tokenFile), []byte(sess.Token), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, usernameFile), []byte(sess.Username), 0o600); err != nil {
		return fmt.Errorf("save username: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an absent session is not an
// error.
func (s Store) Clear() error {
	for _, name := range []string{tokenFile, usernameFile} {
		err := os.Remove(filepath.Join(s.Dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return nil
}

func (s Store) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
