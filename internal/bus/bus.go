// Package bus provides the fan-out hub between the transport and its
// consumers. The transport publishes every inbound frame; each subscriber
// receives every frame published while it is registered, in publish order.
package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned when subscribing to a closed bus.
var ErrClosed = errors.New("bus closed")

// Bus fans published frames out to all active subscriptions.
// The zero value is not usable; construct with New.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
	logger *slog.Logger
}

// New creates an empty Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a new subscription. Frames published before this call
// are not delivered to it.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:   uuid.NewString(),
		bus:  b,
		out:  make(chan string),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	b.subs[sub.id] = sub
	go sub.pump()

	b.logger.Debug("bus subscription added", "subscription", sub.id, "subscribers", len(b.subs))
	return sub, nil
}

// Publish queues text for every active subscription. It never blocks on a
// slow subscriber and never drops a frame.
func (b *Bus) Publish(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.enqueue(text)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops accepting frames. Each subscription still receives what was
// queued for it, after which its channel is closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.finish()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscription is one consumer's ordered view of the bus.
type Subscription struct {
	id  string
	bus *Bus
	out chan string

	mu       sync.Mutex
	queue    []string
	finished bool
	wake     chan struct{}

	stop      chan struct{}
	closeOnce sync.Once
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the delivery channel. It is closed after Close, or after the
// bus is closed and the queue has drained.
func (s *Subscription) C() <-chan string {
	return s.out
}

// Close detaches the subscription. Queued frames are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s.id)
		s.finish()
		close(s.stop)
	})
}

func (s *Subscription) enqueue(text string) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, text)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves queued frames onto out one at a time.
func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = ""
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.stop:
			return
		}
	}
}
