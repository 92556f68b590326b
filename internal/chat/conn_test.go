package chat_test

import (
	"context"
	"io"

	"github.com/omochice/linkchat/internal/chat"
)

// mockConn feeds frames from readCh to the hub. Outbound frames go through
// Client.Outgoing, so Write is never reached in hub tests.
type mockConn struct {
	readCh     chan []byte
	readErr    error
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	return nil
}

func (m *mockConn) Close() error {
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

var _ chat.Conn = (*mockConn)(nil)
