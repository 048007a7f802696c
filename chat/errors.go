package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the session has no token or no username. It
	// is fatal to the engine instance; the caller should return to its
	// signed-out state.
	ErrUnauthenticated = errors.New("chat: session is not authenticated")

	// ErrNotConnected is returned when sending while the channel is not open.
	// The message is dropped, not queued.
	ErrNotConnected = errors.New("chat: not connected")

	// ErrEmptyMessage is returned for blank outbound text.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// ErrMalformedFrame marks an inbound frame that could not be decoded.
	ErrMalformedFrame = errors.New("chat: malformed frame")
)

// ConnectionError reports a failed attempt to open the channel.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("chat: connect: %v", e.Err)
	}
	return fmt.Sprintf("chat: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PollError reports a failed presence fetch. Status is zero when the request
// never produced a response.
type PollError struct {
	Status int
	Err    error
}

func (e *PollError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat: presence poll: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("chat: presence poll: %v", e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// LogoutError reports a rejected or failed logout. The session and the
// connection are retained when it is returned.
type LogoutError struct {
	Status int
	Err    error
}

func (e *LogoutError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat: logout: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("chat: logout: %v", e.Err)
}

func (e *LogoutError) Unwrap() error { return e.Err }
