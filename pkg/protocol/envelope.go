// Package protocol implements the JSON wire contract shared by the chat
// client and the relay server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed reports a frame or payload that is not valid JSON of the
	// expected shape.
	ErrMalformed = errors.New("malformed")

	// ErrUnknownKind reports a frame whose messageType is absent or not one
	// of the recognized tags.
	ErrUnknownKind = errors.New("unknown message type")
)

// Kind is the closed set of frame kinds.
type Kind int

const (
	KindRegister Kind = iota + 1
	KindUsers
	KindMessage
	KindError
)

// String returns the wire tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindUsers:
		return "users"
	case KindMessage:
		return "message"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k >= KindRegister && k <= KindError
}

// ParseKind maps a wire tag to its Kind. Tags are case sensitive.
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "register":
		return KindRegister, nil
	case "users":
		return KindUsers, nil
	case "message":
		return KindMessage, nil
	case "error":
		return KindError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
}

// DecodeError is returned by Decode and DecodeChatMessage.
// Nested is set when the outer frame was fine but the ChatMessage carried
// in its data field was not.
type DecodeError struct {
	Nested bool
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Nested {
		return "failed to parse message data: " + e.Err.Error()
	}
	return "failed to parse server message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Envelope is one protocol frame.
// Users frames use Items; every other kind uses Payload.
type Envelope struct {
	Kind    Kind
	Payload *string
	Items   []string
}

// wireEnvelope is the exact JSON shape expected by the server.
type wireEnvelope struct {
	MessageType string   `json:"messageType"`
	DataArray   []string `json:"dataArray"`
	Data        *string  `json:"data"`
}

// NewRegister builds the registration frame for identity.
func NewRegister(identity string) Envelope {
	return Envelope{Kind: KindRegister, Payload: &identity}
}

// NewText builds the outbound message frame. The client sends the raw text;
// the server rebuilds the nested ChatMessage before relaying it.
func NewText(text string) Envelope {
	return Envelope{Kind: KindMessage, Payload: &text}
}

// NewUsers builds a roster frame.
func NewUsers(names []string) Envelope {
	return Envelope{Kind: KindUsers, Items: names}
}

// NewError builds an error frame with a human readable reason.
func NewError(reason string) Envelope {
	return Envelope{Kind: KindError, Payload: &reason}
}

// NewMessage builds a relayed message frame carrying msg as nested JSON.
func NewMessage(msg ChatMessage) (Envelope, error) {
	data, err := EncodeChatMessage(msg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindMessage, Payload: &data}, nil
}

// PayloadOr returns the payload or def when it is absent.
func (e Envelope) PayloadOr(def string) string {
	if e.Payload == nil {
		return def
	}
	return *e.Payload
}

// Encode renders the envelope as a single JSON text frame.
func Encode(e Envelope) (string, error) {
	w, err := e.toWire()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return string(data), nil
}

// Decode parses one text frame. Failures are *DecodeError wrapping
// ErrMalformed or ErrUnknownKind.
func Decode(text string) (Envelope, error) {
	if !gjson.Valid(text) || !gjson.Parse(text).IsObject() {
		return Envelope{}, &DecodeError{Err: fmt.Errorf("%w: not a JSON object", ErrMalformed)}
	}

	tag := gjson.Get(text, "messageType")
	if tag.Type != gjson.String {
		return Envelope{}, &DecodeError{Err: fmt.Errorf("%w: missing messageType", ErrUnknownKind)}
	}
	kind, err := ParseKind(tag.Str)
	if err != nil {
		return Envelope{}, &DecodeError{Err: err}
	}

	if err := checkItems(gjson.Get(text, "dataArray")); err != nil {
		return Envelope{}, &DecodeError{Err: err}
	}

	var w wireEnvelope
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return Envelope{}, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return fromWire(kind, w), nil
}

// checkItems rejects dataArray entries that are not strings. encoding/json
// would otherwise turn a null entry into "".
func checkItems(items gjson.Result) error {
	if !items.IsArray() {
		return nil
	}
	var err error
	items.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			err = fmt.Errorf("%w: dataArray[%d] is not a string", ErrMalformed, key.Int())
			return false
		}
		return true
	})
	return err
}

// toWire keeps only the field that is meaningful for the kind.
func (e Envelope) toWire() (wireEnvelope, error) {
	if !e.Kind.valid() {
		return wireEnvelope{}, fmt.Errorf("failed to encode envelope: %w: %d", ErrUnknownKind, int(e.Kind))
	}
	w := wireEnvelope{MessageType: e.Kind.String()}
	if e.Kind == KindUsers {
		w.DataArray = e.Items
	} else {
		w.Data = e.Payload
	}
	return w, nil
}

func fromWire(kind Kind, w wireEnvelope) Envelope {
	e := Envelope{Kind: kind}
	if kind == KindUsers {
		e.Items = w.DataArray
	} else {
		e.Payload = w.Data
	}
	return e
}
