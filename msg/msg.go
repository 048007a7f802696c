// Package msg defines the tea.Msg values exchanged between the engine
// commands and the UI models.
package msg

import "github.com/miosa/osa-chat/engine"

// EngineEvent carries one engine change notification into the update loop.
type EngineEvent struct {
	Event engine.Event
}

// EngineClosed is sent once the engine's event stream has ended.
type EngineClosed struct{}

// StartResult is returned by the initial open of the channel.
type StartResult struct {
	Err error
}

// DispatchResult is returned when a send completes. Text is what was sent so
// the input is only cleared when it still holds that text.
type DispatchResult struct {
	Text string
	Err  error
}

// LogoutResult is returned after the backend answered the logout request.
type LogoutResult struct {
	Err error
}

// ReconnectResult is returned by a manual reconnect.
type ReconnectResult struct {
	Err error
}

// HealthResult is returned by a backend health check. Version is the
// server's reported version.
type HealthResult struct {
	Status  string
	Version string
	Err     error
}

// RetryHealth asks for another health check after a failed one.
type RetryHealth struct{}

// TickMsg drives periodic housekeeping such as toast expiry.
type TickMsg struct{}
