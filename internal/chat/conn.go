// Package chat implements the relay room: it tracks who has registered,
// rebuilds chat messages with sender and timestamp, and fans frames out to
// every participant.
package chat

import "context"

// Conn abstracts one client connection carrying JSON text frames.
type Conn interface {
	// Read reads a single text frame.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
