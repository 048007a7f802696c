package client

import "github.com/miosa/osa-chat/chat"

// OnlineUser is one element of GET /online-users.
type OnlineUser struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// User converts the wire shape to the roster entry.
func (u OnlineUser) User() chat.User {
	return chat.User{Username: u.Username, AvatarRef: u.ProfilePicture}
}

// LogoutRequest for POST /logout.
type LogoutRequest struct {
	Username string `json:"username"`
}

// LogoutResponse from POST /logout.
type LogoutResponse struct {
	Message string `json:"message"`
}

// HealthResponse from GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connections   int    `json:"connections"`
}

// ErrorResponse is the standard API error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
