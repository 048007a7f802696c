// Package chat holds the domain types shared by the engine, the transport and
// the rendering layer: messages, the reconciled message log, the presence
// roster, the wire frames and the error taxonomy.
package chat

import "strings"

// Message is a single chat line as delivered by the backend. It is never
// modified after construction.
type Message struct {
	Username  string
	Text      string
	Timestamp int64 // ms since the Unix epoch, as stamped by the sender
	AvatarRef string
}

// Identity is the deduplication key of a Message.
type Identity struct {
	Username  string
	Text      string
	Timestamp int64
}

// Identity returns the (username, text, timestamp) triple.
func (m Message) Identity() Identity {
	return Identity{Username: m.Username, Text: m.Text, Timestamp: m.Timestamp}
}

// Initial returns the upper-cased first letter of the author's name, used
// when no avatar is available.
func (m Message) Initial() string {
	return initial(m.Username)
}

// User is one entry of the presence roster.
type User struct {
	Username  string
	AvatarRef string
}

// Initial returns the upper-cased first letter of the user's name.
func (u User) Initial() string {
	return initial(u.Username)
}

func initial(name string) string {
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}
