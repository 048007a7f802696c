package engine

import (
	"errors"
	"strings"
	"time"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/metrics"
)

// Dispatcher turns outbound text into a message frame on a handle. It never
// touches the log: the backend's echo is what makes a message appear.
type Dispatcher struct {
	Now func() time.Time
}

// Dispatch validates text and writes one frame stamped with the current time
// in milliseconds. Blank text fails with chat.ErrEmptyMessage before the
// handle is looked at; a nil or non-open handle fails with
// chat.ErrNotConnected and nothing is written.
func (d Dispatcher) Dispatch(h *Handle, username, text string) error {
	if strings.TrimSpace(text) == "" {
		metrics.MessagesDispatched.WithLabelValues("empty").Inc()
		return chat.ErrEmptyMessage
	}
	if !h.CanSend() {
		metrics.MessagesDispatched.WithLabelValues("not_connected").Inc()
		return chat.ErrNotConnected
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	data, err := chat.EncodeFrame(chat.MessageFrame{Message: chat.Message{
		Username:  username,
		Text:      text,
		Timestamp: now().UnixMilli(),
	}})
	if err != nil {
		metrics.MessagesDispatched.WithLabelValues("error").Inc()
		return err
	}
	if err := h.Send(data); err != nil {
		if errors.Is(err, chat.ErrNotConnected) {
			metrics.MessagesDispatched.WithLabelValues("not_connected").Inc()
		} else {
			metrics.MessagesDispatched.WithLabelValues("error").Inc()
		}
		return err
	}
	metrics.MessagesDispatched.WithLabelValues("sent").Inc()
	return nil
}
