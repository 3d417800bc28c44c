// Package queue sequences mood transitions so that they run one at a time in arrival order.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/app/notification"
	"github.com/osa030/feeltune/internal/domain/transition"
)

// Errors
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrClosed            = errors.New("transition queue closed")
)

// Realizer makes the "to" side of a transition audible.
type Realizer interface {
	Realize(ctx context.Context, t transition.Transition) error
}

// RealizerFunc adapts a function to Realizer.
type RealizerFunc func(ctx context.Context, t transition.Transition) error

// Realize calls f.
func (f RealizerFunc) Realize(ctx context.Context, t transition.Transition) error {
	return f(ctx, t)
}

// Queue executes transitions strictly in FIFO order with at most one in flight.
type Queue struct {
	mu       sync.Mutex
	pending  []transition.Transition
	draining bool
	closed   bool
	idle     chan struct{} // Closed when the current drain loop exits
	current  *transition.Endpoint

	realizer Realizer
	events   *notification.Manager[Event]

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a queue. realizer may be nil, in which case transitions only
// move the current-track pointer and observe their delay.
func New(realizer Realizer) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		idle:     idle,
		realizer: realizer,
		events:   notification.NewManager[Event](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue appends t and starts a drain loop if none is active. It returns
// without waiting for t to execute.
func (q *Queue) Enqueue(t transition.Transition) error {
	if err := t.Validate(); err != nil {
		return errors.Mark(err, ErrInvalidTransition)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, t)
	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
	zlog.Debug().Msgf("queue: enqueued %s -> %s (%s, %dms), pending=%d",
		t.From.TrackID, t.To.TrackID, t.Type, t.DurationMs(), len(q.pending))
	return nil
}

// drain runs until the queue is empty. draining is cleared under the same
// lock that observed the empty queue.
func (q *Queue) drain(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.closed {
			q.pending = nil
			q.draining = false
			close(idle)
			q.mu.Unlock()

			q.events.Broadcast(Event{Type: EventIdle})
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(t)
	}
}

// run executes one transition, isolating its failure from the rest of the queue.
func (q *Queue) run(t transition.Transition) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("transition panicked: %v", r)
		}
		if err != nil {
			zlog.Warn().Err(err).Msgf("queue: %s -> %s failed", t.From.TrackID, t.To.TrackID)
			q.events.Broadcast(Event{Type: EventFailed, Transition: t, Err: err})
			return
		}
		q.events.Broadcast(Event{Type: EventCompleted, Transition: t})
	}()

	q.events.Broadcast(Event{Type: EventStarted, Transition: t})
	err = q.execute(t)
}

func (q *Queue) execute(t transition.Transition) error {
	switch t.Type {
	case transition.TypeImmediate:
		q.setCurrent(t.To)
		return q.realize(t)

	case transition.TypeCrossfade, transition.TypeGradual:
		if err := q.realize(t); err != nil {
			return err
		}
		if err := q.wait(t.Duration); err != nil {
			return err
		}
		q.setCurrent(t.To)
		return nil

	default:
		return errors.Mark(errors.Newf("unknown transition type: %q", t.Type), ErrInvalidTransition)
	}
}

func (q *Queue) realize(t transition.Transition) error {
	if q.realizer == nil {
		return nil
	}
	if err := q.realizer.Realize(q.ctx, t); err != nil {
		return errors.Wrapf(err, "failed to realize %s", t.To.TrackID)
	}
	return nil
}

func (q *Queue) wait(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-q.ctx.Done():
		return ErrClosed
	}
}

func (q *Queue) setCurrent(e transition.Endpoint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = &e
}

// Current returns the endpoint of the last applied transition.
func (q *Queue) Current() (transition.Endpoint, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return transition.Endpoint{}, false
	}
	return *q.current, true
}

// CurrentTrack returns the track of the last applied transition, or "".
func (q *Queue) CurrentTrack() string {
	e, _ := q.Current()
	return e.TrackID
}

// Len returns the number of transitions waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns a copy of the transitions waiting to run.
func (q *Queue) Pending() []transition.Transition {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]transition.Transition, len(q.pending))
	copy(out, q.pending)
	return out
}

// Draining reports whether a drain loop is active.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// WaitIdle blocks until the active drain loop exits or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel of queue events.
func (q *Queue) Subscribe(buffer int) (string, <-chan notification.Notification[Event]) {
	return q.events.SubscribeChan(buffer)
}

// Unsubscribe removes a subscription created by Subscribe.
func (q *Queue) Unsubscribe(id string) {
	q.events.Unsubscribe(id)
}

// Close drops pending transitions, interrupts the one in flight and closes
// every event subscription. Subsequent Enqueue calls fail with ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	q.events.Close()
	if dropped > 0 {
		zlog.Info().Msgf("queue: closed, %d pending transitions dropped", dropped)
	}
}
