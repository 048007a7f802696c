package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// TypeMessage is the only frame type currently spoken on the channel.
const TypeMessage = "message"

// Frame is one decoded unit exchanged over the channel. New frame kinds are
// added as new implementations; anything the decoder does not recognise is
// rejected with ErrMalformedFrame.
type Frame interface {
	FrameType() string
}

// MessageFrame carries one chat message.
type MessageFrame struct {
	Message Message
}

// FrameType implements Frame.
func (MessageFrame) FrameType() string { return TypeMessage }

// wireMessage is the JSON shape of a message frame.
//
//	{"type":"message","username":"a","message":"hi","timestamp":1000,"profile_picture":"https://..."}
type wireMessage struct {
	Type           string `json:"type"`
	Username       string `json:"username"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// inboundMessage uses pointers so that absent fields can be told apart from
// zero values.
type inboundMessage struct {
	Type           *string `json:"type"`
	Username       *string `json:"username"`
	Message        *string `json:"message"`
	Timestamp      *int64  `json:"timestamp"`
	ProfilePicture *string `json:"profile_picture"`
}

// DecodeFrame parses one inbound frame. Unknown fields, an unknown type,
// missing required fields and trailing data all yield an error wrapping
// ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var in inboundMessage
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedFrame)
	}

	if in.Type != nil && *in.Type != TypeMessage {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, *in.Type)
	}
	switch {
	case in.Username == nil || *in.Username == "":
		return nil, fmt.Errorf("%w: missing username", ErrMalformedFrame)
	case in.Message == nil:
		return nil, fmt.Errorf("%w: missing message", ErrMalformedFrame)
	case in.Timestamp == nil:
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedFrame)
	}

	m := Message{
		Username:  *in.Username,
		Text:      *in.Message,
		Timestamp: *in.Timestamp,
	}
	if in.ProfilePicture != nil {
		m.AvatarRef = *in.ProfilePicture
	}
	return MessageFrame{Message: m}, nil
}

// EncodeFrame serialises f. HTML escaping is disabled so that <, > and & reach
// the other side as typed.
func EncodeFrame(f Frame) ([]byte, error) {
	switch f := f.(type) {
	case MessageFrame:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		err := enc.Encode(wireMessage{
			Type:           TypeMessage,
			Username:       f.Message.Username,
			Message:        f.Message.Text,
			Timestamp:      f.Message.Timestamp,
			ProfilePicture: f.Message.AvatarRef,
		})
		if err != nil {
			return nil, fmt.Errorf("encode frame: %w", err)
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	default:
		return nil, fmt.Errorf("encode frame: unsupported frame %T", f)
	}
}
