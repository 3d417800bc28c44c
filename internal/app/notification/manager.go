// Package notification provides the subscription manager used to broadcast state changes.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultSendTimeout bounds how long Broadcast waits for a single subscriber.
const DefaultSendTimeout = 500 * time.Millisecond

// Notification is a payload stamped with a broadcast sequence number.
type Notification[T any] struct {
	SequenceNo uint64
	Payload    T
}

// Stream receives notifications for one subscriber.
type Stream[T any] interface {
	Send(Notification[T]) error
}

// StreamFunc adapts a function to Stream.
type StreamFunc[T any] func(Notification[T]) error

// Send calls f.
func (f StreamFunc[T]) Send(n Notification[T]) error {
	return f(n)
}

// subscription represents a subscriber's subscription.
type subscription[T any] struct {
	id     string
	stream Stream[T]
	done   func()
}

// Manager manages subscriptions and broadcasting for payloads of type T.
type Manager[T any] struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription[T]
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new manager.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{
		subscriptions: make(map[string]*subscription[T]),
		sendTimeout:   DefaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager[T]) Subscribe(stream Stream[T]) string {
	return m.add(stream, nil)
}

// SubscribeChan subscribes a buffered channel. Notifications that do not fit
// in the buffer are dropped for that subscriber. The channel is closed on
// Unsubscribe or Close.
func (m *Manager[T]) SubscribeChan(buffer int) (string, <-chan Notification[T]) {
	ch := make(chan Notification[T], buffer)
	var (
		closeMu sync.Mutex
		closed  bool
	)
	stream := StreamFunc[T](func(n Notification[T]) error {
		closeMu.Lock()
		defer closeMu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- n:
		default:
			zlog.Debug().Msgf("notification: subscriber buffer full, dropping #%d", n.SequenceNo)
		}
		return nil
	})
	done := func() {
		closeMu.Lock()
		defer closeMu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return m.add(stream, done), ch
}

func (m *Manager[T]) add(stream Stream[T], done func()) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription[T]{
		id:     id,
		stream: stream,
		done:   done,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager[T]) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[subscriptionID]
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()

	if ok && sub.done != nil {
		sub.done()
	}
}

// Broadcast sends payload to all subscribers and returns its sequence number.
// Each send runs in its own goroutine bounded by the send timeout.
func (m *Manager[T]) Broadcast(payload T) uint64 {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n := Notification[T]{SequenceNo: m.sequenceNo, Payload: payload}
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription[T], 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription[T]) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Msgf("notification: send to %s failed", s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send to %s timed out", s.id)
			}
		}(sub)
	}

	wg.Wait()
	return n.SequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager[T]) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*subscription[T])
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.done != nil {
			sub.done()
		}
	}
}
