// Package session implements the client side of a chat session: it turns
// inbound frames into a State snapshot and user input into outbound frames.
//
// An Engine is not safe for concurrent use. All methods that change state
// must be called from one goroutine, either directly or through Run.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/omochice/linkchat/internal/bus"
	"github.com/omochice/linkchat/pkg/protocol"
)

// Sender is the outbound half of the transport. Send only enqueues; an error
// means the frame was not accepted locally.
type Sender interface {
	Send(text string) error
}

// closeNotifier is implemented by transports that can report that their
// read side has ended.
type closeNotifier interface {
	Done() <-chan struct{}
	Err() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type observer struct {
	id int
	fn func(State)
}

// Engine owns the chat state of one session.
type Engine struct {
	identity string
	tx       Sender
	sub      *bus.Subscription
	logger   *slog.Logger

	state   State
	lastErr error

	observers  []observer
	observerID int
}

// New subscribes to b and registers identity with the server through tx.
// An empty identity fails with ErrConfiguration before anything is sent.
func New(identity string, b *bus.Bus, tx Sender, opts ...Option) (*Engine, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	if b == nil || tx == nil {
		return nil, fmt.Errorf("%w: bus and transport are required", ErrConfiguration)
	}

	e := &Engine{
		identity: identity,
		tx:       tx,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	sub, err := b.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to bus: %w", err)
	}
	e.sub = sub

	e.register()
	return e, nil
}

func validateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: identity must not be empty", ErrConfiguration)
	}
	return nil
}

// Identity returns the name the session registered with.
func (e *Engine) Identity() string {
	return e.identity
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	return e.state.clone()
}

// Phase returns the current connection phase.
func (e *Engine) Phase() Phase {
	return e.state.Phase
}

// Err returns the error behind State.LastError, or nil.
func (e *Engine) Err() error {
	return e.lastErr
}

// Participant looks name up in the current roster.
func (e *Engine) Participant(name string) Participant {
	return e.state.Participant(name)
}

// OnChange registers fn to be called with a fresh snapshot after every
// state change. The returned func removes it.
func (e *Engine) OnChange(fn func(State)) (cancel func()) {
	e.observerID++
	id := e.observerID
	e.observers = append(e.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range e.observers {
			if o.id == id {
				e.observers = append(e.observers[:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// Frames is the inbound frame stream of this session's bus subscription.
func (e *Engine) Frames() <-chan string {
	return e.sub.C()
}

// Close releases the bus subscription and drops all observers.
func (e *Engine) Close() {
	e.sub.Close()
	e.observers = nil
}

// Reauthenticate registers again, possibly under a new identity.
// Roster, transcript and draft are kept.
func (e *Engine) Reauthenticate(identity string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	e.identity = identity
	e.register()
	e.notify()
	return nil
}

func (e *Engine) register() {
	text, err := protocol.Encode(protocol.NewRegister(e.identity))
	if err == nil {
		err = e.tx.Send(text)
	}
	if err != nil {
		e.logger.Error("registration failed", "user", e.identity, "err", err)
		e.state.Phase = PhaseDisconnected
		e.state.Connected = false
		e.setError(&SendError{Op: "registration", Err: err})
		return
	}

	e.logger.Debug("registration sent", "user", e.identity)
	e.state.Phase = PhaseConnecting
	e.state.Connected = false
}

// HandleFrame applies one inbound frame. Failures are recorded in LastError
// and never change anything else.
func (e *Engine) HandleFrame(text string) {
	env, err := protocol.Decode(text)
	if err != nil {
		e.logger.Warn("dropping undecodable frame", "err", err)
		e.setError(err)
		e.notify()
		return
	}

	switch env.Kind {
	case protocol.KindUsers:
		roster := make([]Participant, 0, len(env.Items))
		for _, name := range env.Items {
			roster = append(roster, newParticipant(name, true))
		}
		e.state.Roster = roster
		e.state.Connected = true
		e.state.Phase = PhaseJoined
		e.setError(nil)

	case protocol.KindMessage:
		if env.Payload == nil {
			e.logger.Debug("ignoring message frame without data")
			return
		}
		msg, err := protocol.DecodeChatMessage(*env.Payload)
		if err != nil {
			e.logger.Warn("dropping message with bad payload", "err", err)
			e.setError(err)
			break
		}
		e.state.Transcript = append(e.state.Transcript, msg)

	case protocol.KindError:
		if env.Payload == nil {
			e.setError(nil)
		} else {
			e.setError(&ServerError{Reason: *env.Payload})
		}
		e.state.Connected = false
		e.state.Phase = PhaseDisconnected
		e.logger.Info("server reported error", "reason", e.state.LastError)

	case protocol.KindRegister:
		// Servers never send this; it is accepted and ignored.
		e.logger.Debug("ignoring register frame from server")
		return
	}

	e.notify()
}

// UpdateDraft replaces the draft text.
func (e *Engine) UpdateDraft(text string) {
	e.state.Draft = text
	e.notify()
}

// HandleKey submits the draft on "Enter" and ignores every other key.
func (e *Engine) HandleKey(key string) {
	if key == "Enter" {
		e.Submit()
	}
}

// Submit sends the draft as a message frame. Blank drafts are ignored.
// The draft is cleared only when the transport accepted the frame.
func (e *Engine) Submit() {
	if strings.TrimSpace(e.state.Draft) == "" {
		return
	}

	text, err := protocol.Encode(protocol.NewText(e.state.Draft))
	if err == nil {
		err = e.tx.Send(text)
	}
	if err != nil {
		e.logger.Error("failed to send message", "err", err)
		e.setError(&SendError{Op: "message", Err: err})
		e.notify()
		return
	}

	e.state.Draft = ""
	e.notify()
}

// ReportTransportError records that the transport failed underneath the
// session. Connectivity is left to the server's frames.
func (e *Engine) ReportTransportError(err error) {
	if err == nil {
		return
	}
	e.setError(fmt.Errorf("connection lost: %w", err))
	e.notify()
}

// Run processes inbound frames and submitted drafts on the calling goroutine
// until ctx is done or the bus subscription is closed. If the transport
// reports that it has closed, the failure is recorded once.
func (e *Engine) Run(ctx context.Context, drafts <-chan string) error {
	var (
		done    <-chan struct{}
		errFunc func() error
	)
	if cn, ok := e.tx.(closeNotifier); ok {
		done, errFunc = cn.Done(), cn.Err
	}

	frames := e.sub.C()
	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-frames:
			if !ok {
				return nil
			}
			e.HandleFrame(text)
		case draft, ok := <-drafts:
			if !ok {
				drafts = nil
				continue
			}
			e.UpdateDraft(draft)
			e.Submit()
		case <-done:
			done = nil
			if err := errFunc(); err != nil {
				e.ReportTransportError(err)
			}
		}
	}
}

func (e *Engine) setError(err error) {
	e.lastErr = err
	if err == nil {
		e.state.LastError = ""
		return
	}
	e.state.LastError = err.Error()
}

func (e *Engine) notify() {
	if len(e.observers) == 0 {
		return
	}
	observers := slices.Clone(e.observers)
	for _, o := range observers {
		o.fn(e.state.clone())
	}
}
