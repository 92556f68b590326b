package protocol_test

import (
	"errors"
	"testing"

	"github.com/omochice/linkchat/pkg/protocol"
)

func TestDecodeChatMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
		want protocol.ChatMessage
	}{
		{
			name: "without timestamp",
			data: `{"from":"bob","message":"hi"}`,
			want: protocol.ChatMessage{Sender: "bob", Body: "hi"},
		},
		{
			name: "null timestamp",
			data: `{"from":"bob","message":"hi","timestamp":null}`,
			want: protocol.ChatMessage{Sender: "bob", Body: "hi"},
		},
		{
			name: "with timestamp",
			data: `{"from":"alice","message":"yo","timestamp":"2024-01-02T03:04:05Z"}`,
			want: protocol.ChatMessage{Sender: "alice", Body: "yo", SentAt: "2024-01-02T03:04:05Z"},
		},
		{
			name: "empty body is legal",
			data: `{"from":"alice","message":""}`,
			want: protocol.ChatMessage{Sender: "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.DecodeChatMessage(tt.data)
			if err != nil {
				t.Fatalf("DecodeChatMessage() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeChatMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeChatMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "plain text", data: "hello"},
		{name: "missing from", data: `{"message":"hi"}`},
		{name: "missing message", data: `{"from":"bob"}`},
		{name: "null object", data: `null`},
		{name: "wrong type", data: `{"from":1,"message":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.DecodeChatMessage(tt.data)
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Fatalf("DecodeChatMessage() error = %v, want ErrMalformed", err)
			}
			var decErr *protocol.DecodeError
			if !errors.As(err, &decErr) || !decErr.Nested {
				t.Errorf("DecodeChatMessage() error = %v, want nested *DecodeError", err)
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	env, err := protocol.NewMessage(protocol.ChatMessage{Sender: "bob", Body: "hi", SentAt: "2024-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if env.Kind != protocol.KindMessage {
		t.Errorf("Kind = %v, want %v", env.Kind, protocol.KindMessage)
	}

	want := `{"from":"bob","message":"hi","timestamp":"2024-01-02T03:04:05Z"}`
	if got := env.PayloadOr(""); got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestEncodeChatMessage_NoTimestamp(t *testing.T) {
	got, err := protocol.EncodeChatMessage(protocol.ChatMessage{Sender: "bob", Body: "hi"})
	if err != nil {
		t.Fatalf("EncodeChatMessage() error = %v", err)
	}
	want := `{"from":"bob","message":"hi","timestamp":null}`
	if got != want {
		t.Errorf("EncodeChatMessage() = %s, want %s", got, want)
	}
}
