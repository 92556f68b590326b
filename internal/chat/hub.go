package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/linkchat/pkg/protocol"
)

// Reasons sent back in error frames.
const (
	ReasonRoomFull        = "room full"
	ReasonNameTaken       = "username already taken"
	ReasonNameRequired    = "username required"
	ReasonRegistered      = "already registered"
	ReasonRegisterFirst   = "register first"
	ReasonUnexpectedFrame = "unexpected message type"
	ReasonInvalidFrame    = "invalid frame"
)

// Client represents a connected client.
// Username is empty until the client has registered.
type Client struct {
	ID       string
	Conn     Conn
	Username string
	Outgoing chan []byte
}

// NewClient creates a Client with a fresh ID and an outgoing queue of size
// buffer.
func NewClient(conn Conn, buffer int) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Outgoing: make(chan []byte, buffer),
	}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMaxParticipants caps the number of registered users. Zero means no
// limit.
func WithMaxParticipants(n int) HubOption {
	return func(h *Hub) {
		h.maxParticipants = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the timestamp source for relayed messages.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// Hub manages all connected clients and handles broadcast.
type Hub struct {
	clients map[*Client]bool
	// joined holds registered clients in join order; it drives the roster.
	joined []*Client
	mu     sync.RWMutex

	maxParticipants int
	logger          *slog.Logger
	now             func() time.Time
}

// NewHub creates a new Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a connection to the hub. It joins the roster once it sends
// a register frame.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client. If it had joined, the remaining clients get
// the new roster.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	delete(h.clients, client)

	for i, c := range h.joined {
		if c == client {
			h.joined = append(h.joined[:i], h.joined[i+1:]...)
			h.logger.Info("participant left", "user", client.Username, "client_id", client.ID)
			h.broadcastUsersLocked()
			return
		}
	}
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Participants returns registered usernames in join order.
func (h *Hub) Participants() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.namesLocked()
}

// HandleClient reads frames from the client until its connection fails or
// ctx is done, then unregisters it.
func (h *Hub) HandleClient(ctx context.Context, client *Client) {
	defer h.Unregister(client)

	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.logger.Debug("client read ended", "client_id", client.ID, "remote", client.Conn.RemoteAddr(), "err", err)
			}
			return
		}
		h.handleFrame(client, string(data))
	}
}

func (h *Hub) handleFrame(client *Client, text string) {
	env, err := protocol.Decode(text)
	if err != nil {
		h.logger.Warn("undecodable frame from client", "client_id", client.ID, "err", err)
		h.reply(client, invalidFrameReason(err))
		return
	}

	switch env.Kind {
	case protocol.KindRegister:
		h.join(client, strings.TrimSpace(env.PayloadOr("")))
	case protocol.KindMessage:
		h.relay(client, env.PayloadOr(""))
	default:
		h.reply(client, ReasonUnexpectedFrame)
	}
}

func (h *Hub) join(client *Client, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case name == "":
		h.replyLocked(client, ReasonNameRequired)
		return
	case client.Username != "":
		h.replyLocked(client, ReasonRegistered)
		return
	case h.maxParticipants > 0 && len(h.joined) >= h.maxParticipants:
		h.replyLocked(client, ReasonRoomFull)
		return
	}
	for _, c := range h.joined {
		if c.Username == name {
			h.replyLocked(client, ReasonNameTaken)
			return
		}
	}

	client.Username = name
	h.joined = append(h.joined, client)
	h.logger.Info("participant joined", "user", name, "client_id", client.ID, "participants", len(h.joined))
	h.broadcastUsersLocked()
}

func (h *Hub) relay(client *Client, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.Username == "" {
		h.replyLocked(client, ReasonRegisterFirst)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	env, err := protocol.NewMessage(protocol.ChatMessage{
		Sender: client.Username,
		Body:   text,
		SentAt: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("failed to build message", "err", err)
		return
	}
	h.broadcastLocked(env)
}

func (h *Hub) namesLocked() []string {
	names := make([]string, 0, len(h.joined))
	for _, c := range h.joined {
		names = append(names, c.Username)
	}
	return names
}

func (h *Hub) broadcastUsersLocked() {
	h.broadcastLocked(protocol.NewUsers(h.namesLocked()))
}

// broadcastLocked sends env to every registered client.
func (h *Hub) broadcastLocked(env protocol.Envelope) {
	data, err := encode(env)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "kind", env.Kind, "err", err)
		return
	}
	for _, c := range h.joined {
		h.enqueue(c, data)
	}
}

func (h *Hub) reply(client *Client, reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.replyLocked(client, reason)
}

func (h *Hub) replyLocked(client *Client, reason string) {
	data, err := encode(protocol.NewError(reason))
	if err != nil {
		h.logger.Error("failed to encode error frame", "err", err)
		return
	}
	h.enqueue(client, data)
}

// enqueue never blocks; a client that cannot keep up loses frames.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.Outgoing <- data:
	default:
		h.logger.Warn("dropping frame for slow client", "client_id", client.ID, "user", client.Username)
	}
}

// invalidFrameReason describes a client frame that failed to decode without
// the client-side "server message" wording of DecodeError.
func invalidFrameReason(err error) string {
	var decErr *protocol.DecodeError
	if errors.As(err, &decErr) {
		err = decErr.Err
	}
	return ReasonInvalidFrame + ": " + err.Error()
}

func encode(env protocol.Envelope) ([]byte, error) {
	text, err := protocol.Encode(env)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}
