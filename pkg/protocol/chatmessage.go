package protocol

import (
	"encoding/json"
	"fmt"
)

// ChatMessage is one transcript entry as relayed by the server inside the
// data field of a message frame.
type ChatMessage struct {
	Sender string
	Body   string
	// SentAt is the server supplied timestamp, empty when the server sent
	// none. It is never filled in locally.
	SentAt string
}

type wireChatMessage struct {
	From      *string `json:"from"`
	Message   *string `json:"message"`
	Timestamp *string `json:"timestamp"`
}

// EncodeChatMessage renders msg as the nested JSON object.
func EncodeChatMessage(msg ChatMessage) (string, error) {
	w := wireChatMessage{From: &msg.Sender, Message: &msg.Body}
	if msg.SentAt != "" {
		w.Timestamp = &msg.SentAt
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat message: %w", err)
	}
	return string(data), nil
}

// DecodeChatMessage parses the nested payload of a message frame.
// from and message are required; timestamp is optional.
func DecodeChatMessage(data string) (ChatMessage, error) {
	var w wireChatMessage
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return ChatMessage{}, &DecodeError{Nested: true, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if w.From == nil {
		return ChatMessage{}, &DecodeError{Nested: true, Err: fmt.Errorf("%w: missing field `from`", ErrMalformed)}
	}
	if w.Message == nil {
		return ChatMessage{}, &DecodeError{Nested: true, Err: fmt.Errorf("%w: missing field `message`", ErrMalformed)}
	}

	msg := ChatMessage{Sender: *w.From, Body: *w.Message}
	if w.Timestamp != nil {
		msg.SentAt = *w.Timestamp
	}
	return msg, nil
}
