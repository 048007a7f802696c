package chat

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeFrame_Message(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"message","username":"a","message":"hi","timestamp":1000,"profile_picture":"https://img/a.png"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mf, ok := f.(MessageFrame)
	if !ok {
		t.Fatalf("want MessageFrame, got %T", f)
	}
	want := Message{Username: "a", Text: "hi", Timestamp: 1000, AvatarRef: "https://img/a.png"}
	if mf.Message != want {
		t.Errorf("want %+v, got %+v", want, mf.Message)
	}
}

func TestDecodeFrame_TypeIsOptional(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"username":"a","message":"","timestamp":0}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := f.(MessageFrame).Message; got.Username != "a" || got.Text != "" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `hello`,
		"array":             `[1,2]`,
		"null":              `null`,
		"unknown field":     `{"username":"a","message":"hi","timestamp":1,"admin":true}`,
		"unknown type":      `{"type":"typing","username":"a","message":"hi","timestamp":1}`,
		"missing username":  `{"message":"hi","timestamp":1}`,
		"empty username":    `{"username":"","message":"hi","timestamp":1}`,
		"missing message":   `{"username":"a","timestamp":1}`,
		"missing timestamp": `{"username":"a","message":"hi"}`,
		"string timestamp":  `{"username":"a","message":"hi","timestamp":"1"}`,
		"float timestamp":   `{"username":"a","message":"hi","timestamp":1.5}`,
		"trailing object":   `{"username":"a","message":"hi","timestamp":1}{"username":"b"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw))
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("want ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestEncodeFrame_OutboundShape(t *testing.T) {
	data, err := EncodeFrame(MessageFrame{Message: Message{Username: "a", Text: "<b>hi</b> & bye", Timestamp: 42}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"message","username":"a","message":"<b>hi</b> & bye","timestamp":42}`
	if string(data) != want {
		t.Errorf("want %s\n got %s", want, data)
	}
}

func TestEncodeFrame_DecodesBack(t *testing.T) {
	in := Message{Username: "a", Text: "hi", Timestamp: 7, AvatarRef: "https://img/a"}
	data, err := EncodeFrame(MessageFrame{Message: in})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if raw["profile_picture"] != "https://img/a" {
		t.Errorf("profile_picture missing from %s", data)
	}
	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := f.(MessageFrame).Message; got != in {
		t.Errorf("want %+v, got %+v", in, got)
	}
}
