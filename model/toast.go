package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/osa-chat/style"
)

// ToastLevel classifies toast severity.
type ToastLevel int

const (
	ToastInfo ToastLevel = iota
	ToastWarning
	ToastError
)

// Topic groups notices about the same thing. A newer notice replaces the
// older one on its topic, so "reconnecting" gives way to "connected" instead
// of stacking under it.
type Topic int

const (
	TopicConnection Topic = iota
	TopicBackend
	TopicSend
	TopicSession
	TopicCommand
)

const maxToasts = 3

// Errors stay up longer than confirmations.
var toastTTL = map[ToastLevel]time.Duration{
	ToastInfo:    3 * time.Second,
	ToastWarning: 4 * time.Second,
	ToastError:   6 * time.Second,
}

type toast struct {
	topic   Topic
	level   ToastLevel
	message string
	expiry  time.Time
}

// ToastsModel shows short-lived notices about the connection and about
// actions that failed without needing a reply: a rejected send, a lost
// channel, a failed logout.
type ToastsModel struct {
	queue []toast
	now   func() time.Time
}

func NewToasts() ToastsModel {
	return ToastsModel{now: time.Now}
}

// Add shows message on topic, replacing whatever that topic showed. The
// oldest notice is dropped past maxToasts.
func (m *ToastsModel) Add(topic Topic, level ToastLevel, message string) {
	m.Clear(topic)
	m.queue = append(m.queue, toast{
		topic:   topic,
		level:   level,
		message: message,
		expiry:  m.clock().Add(toastTTL[level]),
	})
	if len(m.queue) > maxToasts {
		m.queue = m.queue[len(m.queue)-maxToasts:]
	}
}

// Clear removes the notice on topic, if any.
func (m *ToastsModel) Clear(topic Topic) {
	kept := m.queue[:0]
	for _, t := range m.queue {
		if t.topic != topic {
			kept = append(kept, t)
		}
	}
	m.queue = kept
}

// Tick drops expired notices. Call on every msg.TickMsg.
func (m *ToastsModel) Tick() {
	now := m.clock()
	kept := m.queue[:0]
	for _, t := range m.queue {
		if now.Before(t.expiry) {
			kept = append(kept, t)
		}
	}
	m.queue = kept
}

func (m ToastsModel) Len() int { return len(m.queue) }

func (m ToastsModel) HasToasts() bool { return len(m.queue) > 0 }

// View renders the notices right-aligned, oldest first.
func (m ToastsModel) View(termWidth int) string {
	if len(m.queue) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.queue))
	for _, t := range m.queue {
		icon, color := toastIconColor(t.level)
		rendered := lipgloss.NewStyle().
			Foreground(color).
			Render(fmt.Sprintf(" %s %s ", icon, t.message))
		lines = append(lines, lipgloss.PlaceHorizontal(termWidth, lipgloss.Right, rendered))
	}
	return strings.Join(lines, "\n")
}

func (m ToastsModel) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func toastIconColor(level ToastLevel) (string, lipgloss.TerminalColor) {
	switch level {
	case ToastWarning:
		return "⚠", style.Warning
	case ToastError:
		return "✘", style.Error
	default:
		return "✓", style.Success
	}
}
