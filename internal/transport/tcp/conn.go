// Package tcp serves the relay over plain TCP with one JSON frame per line,
// which is handy for poking the room with netcat.
package tcp

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"
)

const maxFrameSize = 64 * 1024

// Conn adapts a net.Conn carrying newline-delimited frames to chat.Conn.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	wmu     sync.Mutex
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Conn{conn: conn, scanner: sc}
}

// Read implements chat.Conn.
// Blank lines are skipped and a trailing carriage return is dropped.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(append(buf, data...), '\n')
	_, err := c.conn.Write(buf)
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
