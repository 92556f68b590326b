// Package ws provides the WebSocket transport used by the chat client.
// Outbound frames are queued and written by a background goroutine; inbound
// text frames are handed to a Publisher in arrival order.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	// ErrClosed is returned by Send once the channel is closed or its
	// connection has failed.
	ErrClosed = errors.New("ws: channel closed")

	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.New("ws: send queue full")
)

const defaultQueueSize = 16

// Publisher receives every inbound text frame.
type Publisher interface {
	Publish(text string)
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueueSize sets the outbound queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithDialTimeout bounds connect plus handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.dialer.Timeout = d
	}
}

// Channel is one client connection to the chat server.
type Channel struct {
	address   string
	dialer    ws.Dialer
	queueSize int
	logger    *slog.Logger
	pub       Publisher

	conn   net.Conn
	reader io.Reader
	wmu    sync.Mutex

	outgoing chan string

	mu     sync.Mutex
	closed bool
	err    error

	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to address and starts the read and write loops.
func Dial(ctx context.Context, address string, pub Publisher, opts ...Option) (*Channel, error) {
	c := &Channel{
		address:   address,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		pub:       pub,
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, br, _, err := c.dialer.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	c.conn = conn
	c.reader = conn
	if br != nil {
		// The server spoke right after the handshake; br wraps conn and
		// holds those bytes.
		c.reader = br
	}
	c.outgoing = make(chan string, c.queueSize)

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	c.logger.Info("connected to server", "remote", address)
	return c, nil
}

// Send queues text for delivery. It never waits for the network.
func (c *Channel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	select {
	case c.outgoing <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// Done is closed when the read side has stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure that stopped the channel, or nil after a normal
// Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RemoteAddr returns the server address.
func (c *Channel) RemoteAddr() string {
	return c.address
}

// Close sends a close frame, closes the connection and waits for the
// loops to exit.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)

		c.wmu.Lock()
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.wmu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	c.closed = true
}

func (c *Channel) closing() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	defer close(c.done)

	rd := wsutil.Reader{
		Source:         c.reader,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}

	for {
		hdr, err := rd.NextFrame()
		if err == nil && hdr.OpCode.IsControl() {
			err = c.handleControl(hdr, &rd)
			if err == nil {
				continue
			}
		}
		if err != nil {
			c.stopReading(err)
			return
		}

		if hdr.OpCode&ws.OpText == 0 {
			if err := rd.Discard(); err != nil {
				c.stopReading(err)
				return
			}
			continue
		}

		data, err := io.ReadAll(&rd)
		if err != nil {
			c.stopReading(err)
			return
		}
		c.logger.Debug("frame received", "remote", c.address, "bytes", len(data))
		c.pub.Publish(string(data))
	}
}

// handleControl answers pings and close frames. Writes share wmu with the
// write loop so frames never interleave.
func (c *Channel) handleControl(hdr ws.Header, r io.Reader) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.ControlFrameHandler(c.conn, ws.StateClientSide)(hdr, r)
}

func (c *Channel) stopReading(err error) {
	if c.closing() {
		return
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		c.logger.Info("server closed connection", "remote", c.address, "code", closed.Code, "reason", closed.Reason)
	} else {
		c.logger.Error("error reading from server", "remote", c.address, "err", err)
	}
	c.fail(err)
}

func (c *Channel) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return
		case <-c.done:
			return
		case text := <-c.outgoing:
			c.wmu.Lock()
			err := wsutil.WriteClientText(c.conn, []byte(text))
			c.wmu.Unlock()
			if err != nil {
				if !c.closing() {
					c.logger.Error("failed to write to server", "remote", c.address, "err", err)
					c.fail(err)
				}
				return
			}
		}
	}
}
