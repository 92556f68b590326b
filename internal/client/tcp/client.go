// Package tcp provides the line-delimited TCP transport used by the chat
// client. It speaks to the relay's TCP listener: one JSON frame per line.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	transport "github.com/omochice/linkchat/internal/transport/tcp"
)

var (
	// ErrClosed is returned by Send once the channel is closed or its
	// connection has failed.
	ErrClosed = errors.New("tcp: channel closed")

	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.New("tcp: send queue full")
)

const (
	defaultQueueSize = 16
	writeTimeout     = 10 * time.Second
)

// Publisher receives every inbound frame.
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

// WithDialTimeout bounds the connect.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.dialer.Timeout = d
	}
}

// Channel is one client connection to the chat server.
type Channel struct {
	address   string
	dialer    net.Dialer
	queueSize int
	logger    *slog.Logger
	pub       Publisher

	conn *transport.Conn

	outgoing chan string

	mu     sync.Mutex
	closed bool
	err    error

	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to address, either host:port or tcp://host:port, and starts
// the read and write loops.
func Dial(ctx context.Context, address string, pub Publisher, opts ...Option) (*Channel, error) {
	c := &Channel{
		address:   strings.TrimSuffix(strings.TrimPrefix(address, "tcp://"), "/"),
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		pub:       pub,
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	c.conn = transport.NewConn(conn)
	c.outgoing = make(chan string, c.queueSize)

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	c.logger.Info("connected to server", "remote", c.address)
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

// Close closes the connection and waits for the loops to exit.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)

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

	for {
		data, err := c.conn.Read(context.Background())
		if err != nil {
			c.stopReading(err)
			return
		}
		c.logger.Debug("frame received", "remote", c.address, "bytes", len(data))
		c.pub.Publish(string(data))
	}
}

func (c *Channel) stopReading(err error) {
	if c.closing() {
		return
	}
	if errors.Is(err, io.EOF) {
		c.logger.Info("server closed connection", "remote", c.address)
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
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, []byte(text))
			cancel()
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
