package session

import (
	"errors"
)

// ErrConfiguration is returned when a session cannot be created, such as
// with an empty identity.
var ErrConfiguration = errors.New("configuration error")

// SendError reports a local failure to hand a frame to the transport.
type SendError struct {
	Op  string
	Err error
}

func (e *SendError) Error() string {
	return "failed to send " + e.Op + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ServerError is an error frame reported by the server.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return e.Reason
}
