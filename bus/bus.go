package bus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

const defaultBuffer = 64

// Bus is an in-process message bus. Published messages are encoded once and
// decoded separately for each subscriber, so subscribers never share memory with
// the publisher or with each other.
//
// Delivery is at most once: a subscriber that has been closed is skipped, and a
// message published before a subscription exists is not replayed.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "bus"),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription receives messages of the kinds it was created for.
type Subscription struct {
	bus   *Bus
	kinds []Kind
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

// Subscribe registers a subscriber for the given kinds. With no kinds, every
// message is delivered.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	s := &Subscription{
		bus:   b,
		kinds: kinds,
		ch:    make(chan Message, defaultBuffer),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// C returns the channel messages are delivered on. It is never closed; select on
// Done as well when the subscription may be closed concurrently.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Publish delivers m to every interested subscriber, blocking while a
// subscriber's buffer is full. It returns early if ctx is cancelled.
func (b *Bus) Publish(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return b.PublishRaw(ctx, data)
}

// PublishRaw delivers an already encoded payload. Payloads that do not decode are
// rejected before any subscriber sees them.
func (b *Bus) PublishRaw(ctx context.Context, data []byte) error {
	probe, err := Decode(data)
	if err != nil {
		return err
	}
	kind := probe.Kind()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		if s.wants(kind) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for i, s := range targets {
		m := probe
		if i > 0 {
			// Each subscriber gets its own decoded copy.
			if m, err = Decode(data); err != nil {
				return fmt.Errorf("re-decoding %s message: %w", kind, err)
			}
		}
		select {
		case s.ch <- m:
		case <-s.done:
			b.logger.Debug("skipping closed subscriber", "kind", kind)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
