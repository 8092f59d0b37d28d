package storyteller

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventReporter publishes individual events. Reporter satisfies this interface
// so application code can stay agnostic about how events are consumed.
type EventReporter[E any] interface {
	ReportEvent(evt E) error
}

// ReporterOption configures a Reporter.
type ReporterOption func(*reporterOptions)

type reporterOptions struct {
	ack *AckReceiver
}

// WithDisconnectAck makes Disconnect wait for the listener's acknowledgment
// on ack, so Disconnect only returns after the handler's Finish has run. The
// matching Listener must be built with WithAcknowledger.
func WithDisconnectAck(ack *AckReceiver) ReporterOption {
	return func(o *reporterOptions) {
		o.ack = ack
	}
}

// Reporter is the producer-side handle of a reporter/listener pair. It is safe
// for concurrent use. Once disconnected it rejects further events.
//
// Without WithDisconnectAck, Disconnect only closes the event channel and the
// caller waits for processing via FinalizeHandle.FinishProcessing.
type Reporter[E any] struct {
	mu           sync.RWMutex
	sender       *EventSender[E]
	ack          *AckReceiver
	disconnected bool
}

// NewReporter wraps sender. The Reporter takes ownership of the handle and
// closes it on Disconnect.
func NewReporter[E any](sender *EventSender[E], opts ...ReporterOption) *Reporter[E] {
	var o reporterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Reporter[E]{sender: sender, ack: o.ack}
}

// ReportEvent forwards evt to the listener without blocking. If the listener
// side is gone it returns an *EventDroppedError carrying evt.
func (r *Reporter[E]) ReportEvent(evt E) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disconnected {
		return ErrReporterDisconnected
	}
	if err := r.sender.Send(evt); err != nil {
		var sendErr *SendError[E]
		if errors.As(err, &sendErr) {
			return &EventDroppedError[E]{Event: sendErr.Event, Err: err}
		}
		return &EventDroppedError[E]{Event: evt, Err: err}
	}
	return nil
}

// Disconnect closes the event channel so the listener can drain it and run
// its handler's Finish. With WithDisconnectAck it then blocks until the
// listener acknowledges, or until ctx ends. It may only be called once.
func (r *Reporter[E]) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.disconnected {
		r.mu.Unlock()
		return ErrReporterDisconnected
	}
	r.disconnected = true
	r.sender.Close()
	r.mu.Unlock()

	if r.ack == nil {
		return nil
	}
	defer r.ack.Close()
	if err := r.ack.Recv(ctx); err != nil {
		if errors.Is(err, ErrNoAcknowledgment) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNoAcknowledgment, err)
	}
	return nil
}

// Pending reports how many reported events are still waiting to be handled.
func (r *Reporter[E]) Pending() int {
	return r.sender.Len()
}
