package storyteller

import (
	"context"
	"fmt"
	"sync"
)

// compactThreshold bounds how many consumed slots the queue keeps before it
// shifts pending events back to the front of its backing slice.
const compactThreshold = 256

// queue is the unbounded FIFO shared by every sender and receiver handle of
// one event channel. All fields are guarded by mu.
type queue[E any] struct {
	mu        sync.Mutex
	items     []E
	head      int
	senders   int
	receivers int
	notify    chan struct{}
	closed    chan struct{}
}

// NewEventChannel creates an unbounded, single-consumer event channel and
// returns its first sender and receiver handles. Sends never block. The channel
// closes once every sender handle has been closed; the receiver then drains
// the remaining events before reporting ErrChannelClosed.
func NewEventChannel[E any]() (*EventSender[E], *EventReceiver[E]) {
	q := &queue[E]{
		senders:   1,
		receivers: 1,
		notify:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
	return &EventSender[E]{q: q}, &EventReceiver[E]{q: q}
}

func (q *queue[E]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue[E]) pending() int {
	return len(q.items) - q.head
}

func (q *queue[E]) popLocked() E {
	var zero E
	evt := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return evt
}

// EventSender is the producing half of an event channel. A sender may be
// cloned; each clone must be closed for the channel to close.
type EventSender[E any] struct {
	q      *queue[E]
	closed bool // guarded by q.mu
}

// Send enqueues evt without blocking. It fails with a *SendError carrying evt
// when no receiver remains or when this handle was already closed.
func (s *EventSender[E]) Send(evt E) error {
	q := s.q
	q.mu.Lock()
	if s.closed {
		q.mu.Unlock()
		return &SendError[E]{Event: evt, Err: ErrSenderClosed}
	}
	if q.receivers == 0 {
		q.mu.Unlock()
		return &SendError[E]{Event: evt, Err: ErrReceiverGone}
	}
	q.items = append(q.items, evt)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Clone returns a new sender handle sharing the same channel. Cloning a
// closed handle yields a closed handle.
func (s *EventSender[E]) Clone() *EventSender[E] {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.closed {
		return &EventSender[E]{q: q, closed: true}
	}
	q.senders++
	return &EventSender[E]{q: q}
}

// Close releases this sender handle. Once the last handle is closed the
// channel transitions to closed. Closing a handle twice is a no-op.
func (s *EventSender[E]) Close() {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	q.senders--
	if q.senders == 0 {
		close(q.closed)
	}
}

// Len reports the number of events waiting to be received.
func (s *EventSender[E]) Len() int {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.pending()
}

// EventReceiver is the consuming half of an event channel.
type EventReceiver[E any] struct {
	q      *queue[E]
	closed bool // guarded by q.mu
}

// Recv blocks until an event is available, the channel is closed and drained
// (ErrChannelClosed), or ctx ends.
func (r *EventReceiver[E]) Recv(ctx context.Context) (E, error) {
	var zero E
	q := r.q
	for {
		q.mu.Lock()
		if r.closed {
			q.mu.Unlock()
			return zero, ErrReceiverGone
		}
		if q.pending() > 0 {
			evt := q.popLocked()
			more := q.pending() > 0
			q.mu.Unlock()
			if more {
				// hand the wakeup on to any competing receiver
				q.signal()
			}
			return evt, nil
		}
		if q.senders == 0 {
			q.mu.Unlock()
			return zero, ErrChannelClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.closed:
		case <-ctx.Done():
			return zero, fmt.Errorf("event receive: %w", ctx.Err())
		}
	}
}

// Len reports the number of events waiting to be received.
func (r *EventReceiver[E]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.pending()
}

// Clone returns another receiver handle. Receivers compete for events; the
// Listener never clones its receiver.
func (r *EventReceiver[E]) Clone() *EventReceiver[E] {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if r.closed {
		return &EventReceiver[E]{q: q, closed: true}
	}
	q.receivers++
	return &EventReceiver[E]{q: q}
}

// Close releases this receiver handle. When the last receiver is closed any
// pending events are discarded and further sends fail.
func (r *EventReceiver[E]) Close() {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	q.receivers--
	if q.receivers == 0 {
		q.items = nil
		q.head = 0
	}
}
