// Package client chooses the transport for a server URL. ws:// and wss://
// use the WebSocket channel; tcp:// uses the line-delimited TCP channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/omochice/linkchat/internal/client/tcp"
	"github.com/omochice/linkchat/internal/client/ws"
)

// ErrUnsupportedScheme is returned for server URLs that no transport serves.
var ErrUnsupportedScheme = errors.New("unsupported server URL scheme")

// Publisher receives every inbound frame.
type Publisher interface {
	Publish(text string)
}

// Transport is what a session needs from a connected channel.
type Transport interface {
	Send(text string) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Options are shared by every transport.
type Options struct {
	Logger      *slog.Logger
	QueueSize   int
	DialTimeout time.Duration
}

// Dial connects to serverURL with the transport its scheme names.
func Dial(ctx context.Context, serverURL string, pub Publisher, opts Options) (Transport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}

	// A failed dial must return a nil interface, not a typed nil channel.
	switch u.Scheme {
	case "ws", "wss":
		ch, err := ws.Dial(ctx, serverURL, pub,
			ws.WithLogger(opts.Logger),
			ws.WithQueueSize(opts.QueueSize),
			ws.WithDialTimeout(opts.DialTimeout),
		)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case "tcp":
		ch, err := tcp.Dial(ctx, u.Host, pub,
			tcp.WithLogger(opts.Logger),
			tcp.WithQueueSize(opts.QueueSize),
			tcp.WithDialTimeout(opts.DialTimeout),
		)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
