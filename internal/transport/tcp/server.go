package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/omochice/linkchat/internal/chat"
)

const (
	outgoingBuffer = 32
	writeTimeout   = 10 * time.Second
)

// Server handles TCP connections and delegates to Hub.
type Server struct {
	address  string
	listener net.Listener
	hub      *chat.Hub
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	wg     sync.WaitGroup
}

// New creates a TCP server that uses the provided Hub.
// A nil logger falls back to slog.Default().
func New(address string, hub *chat.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		hub:     hub,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
	}
}

// Start accepts TCP connections until Stop. It returns nil after a clean Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener
	close(s.ready)

	s.logger.Info("tcp server started", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to accept tcp connection", "err", err)
			continue
		}

		client := chat.NewClient(NewConn(conn), outgoingBuffer)
		s.hub.Register(client)
		s.logger.Debug("client connected", "client_id", client.ID, "remote", client.Conn.RemoteAddr())

		s.wg.Add(2)
		go s.handleClient(client)
		go s.writeLoop(client)
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop closes the listener, ends every client session and waits for them.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleClient(client *chat.Client) {
	defer s.wg.Done()
	defer close(client.Outgoing)

	// Reads on a net.Conn ignore ctx, so closing is what unblocks them.
	stop := context.AfterFunc(s.ctx, func() { client.Conn.Close() })
	defer stop()

	s.hub.HandleClient(s.ctx, client)
}

func (s *Server) writeLoop(client *chat.Client) {
	defer s.wg.Done()
	defer client.Conn.Close()

	for data := range client.Outgoing {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := client.Conn.Write(ctx, data)
		cancel()
		if err != nil {
			s.logger.Warn("failed to write to tcp client", "client_id", client.ID, "err", err)
			return
		}
	}
}
