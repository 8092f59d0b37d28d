package storyteller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AckPolicy decides what a rendezvous Listener does when it cannot deliver
// its disconnect acknowledgment.
type AckPolicy int

const (
	// AckTolerant logs the failure and finishes normally.
	AckTolerant AckPolicy = iota
	// AckStrict reports the failure through FinalizeHandle.FinishProcessing.
	AckStrict
)

func (p AckPolicy) String() string {
	switch p {
	case AckTolerant:
		return "tolerant"
	case AckStrict:
		return "strict"
	default:
		return fmt.Sprintf("AckPolicy(%d)", int(p))
	}
}

// ParseAckPolicy converts a configuration string into an AckPolicy. The
// empty string selects AckTolerant.
func ParseAckPolicy(s string) (AckPolicy, error) {
	switch s {
	case "", "tolerant":
		return AckTolerant, nil
	case "strict":
		return AckStrict, nil
	default:
		return AckTolerant, fmt.Errorf("unknown ack policy %q", s)
	}
}

// ListenerOption configures a Listener.
type ListenerOption func(*listenerOptions)

type listenerOptions struct {
	ack     *AckSender
	policy  AckPolicy
	logger  *zap.Logger
	metrics *Metrics
}

// WithAcknowledger makes the Listener acknowledge on ack after the handler's
// Finish returns. Pair it with a Reporter built using WithDisconnectAck.
func WithAcknowledger(ack *AckSender) ListenerOption {
	return func(o *listenerOptions) {
		o.ack = ack
	}
}

// WithAckPolicy selects tolerant (default) or strict acknowledgment handling.
func WithAckPolicy(policy AckPolicy) ListenerOption {
	return func(o *listenerOptions) {
		o.policy = policy
	}
}

// WithLogger sets the structured logger used for lifecycle and fault logs.
func WithLogger(logger *zap.Logger) ListenerOption {
	return func(o *listenerOptions) {
		o.logger = logger
	}
}

// WithMetrics instruments the processing goroutine.
func WithMetrics(m *Metrics) ListenerOption {
	return func(o *listenerOptions) {
		o.metrics = m
	}
}

// Listener owns the receiving half of an event channel and runs a Handler
// over it on a background goroutine.
//
// The goroutine only ends once every sender of the channel has been closed,
// normally through Reporter.Disconnect. If that never happens the goroutine
// blocks in receive forever and FinishProcessing never returns on its own:
// callers must disconnect before waiting, or bound the wait with a context.
type Listener[E any] struct {
	receiver *EventReceiver[E]
	ack      *AckSender
	policy   AckPolicy
	logger   *zap.Logger
	metrics  *Metrics
	started  atomic.Bool
}

// NewListener wraps receiver. The Listener takes ownership of the handle.
func NewListener[E any](receiver *EventReceiver[E], opts ...ListenerOption) *Listener[E] {
	o := listenerOptions{policy: AckTolerant}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener[E]{
		receiver: receiver,
		ack:      o.ack,
		policy:   o.policy,
		logger:   logger,
		metrics:  o.metrics,
	}
}

// RunHandler starts the processing goroutine and returns the handle used to
// wait for it. It may be called once per Listener; later calls return
// ErrListenerStarted since a second consumer would compete for events.
func (l *Listener[E]) RunHandler(h Handler[E]) (*FinalizeHandle, error) {
	if h == nil {
		return nil, errors.New("run handler: handler is nil")
	}
	if !l.started.CompareAndSwap(false, true) {
		return nil, ErrListenerStarted
	}
	fin := newFinalizeHandle()
	go l.run(h, fin)
	return fin, nil
}

// errGoexit reports a handler that ended the listener goroutine through
// runtime.Goexit, for example t.FailNow inside a test handler.
var errGoexit = errors.New("handler goroutine exited without returning")

func (l *Listener[E]) run(h Handler[E], fin *FinalizeHandle) {
	l.metrics.started()
	l.logger.Debug("listener started", zap.Bool("rendezvous", l.ack != nil))

	var (
		err          error
		normalReturn bool
	)
	defer func() {
		if !normalReturn {
			jerr := &JoinError{Err: errGoexit}
			l.fault(jerr)
			err = jerr
		}
		if err != nil {
			// nobody will consume what is left; later sends must fail
			l.receiver.Close()
		}
		if l.ack != nil {
			l.ack.Close()
		}
		l.metrics.stopped()
		fin.complete(err)
	}()

	err = l.process(h)
	normalReturn = true
}

func (l *Listener[E]) process(h Handler[E]) error {
	ctx := context.Background()
	var handled int64
	for {
		evt, err := l.receiver.Recv(ctx)
		if errors.Is(err, ErrChannelClosed) {
			break
		}
		if err != nil {
			l.logger.Error("listener receive failed", zap.Error(err))
			return fmt.Errorf("receive event: %w", err)
		}
		handled++
		start := time.Now()
		if jerr := invoke(func() error { return h.Handle(evt) }); jerr != nil {
			jerr.Handled = handled
			l.fault(jerr)
			return jerr
		}
		l.metrics.observeHandle(time.Since(start), l.receiver.Len())
	}

	l.logger.Debug("event channel closed, finishing handler", zap.Int64("handled", handled))
	if jerr := invoke(h.Finish); jerr != nil {
		jerr.Handled = handled
		jerr.InFinish = true
		l.fault(jerr)
		return jerr
	}

	if l.ack != nil {
		if err := l.ack.Acknowledge(ctx); err != nil {
			if l.policy == AckStrict {
				l.logger.Error("disconnect acknowledgment failed", zap.Error(err))
				return fmt.Errorf("acknowledge disconnect: %w", err)
			}
			l.logger.Warn("disconnect acknowledgment failed", zap.Error(err))
		}
	}
	l.logger.Debug("listener finished", zap.Int64("handled", handled))
	return nil
}

func (l *Listener[E]) fault(jerr *JoinError) {
	l.metrics.observeFault(jerr.InFinish)
	fields := []zap.Field{
		zap.Int64("handled", jerr.Handled),
		zap.Bool("in_finish", jerr.InFinish),
		zap.Int("discarded", l.receiver.Len()),
		zap.Error(jerr.Err),
	}
	if jerr.Panic != nil {
		fields = append(fields, zap.ByteString("stack", jerr.Stack))
	}
	l.logger.Error("handler fault, listener stopped", fields...)
}

// invoke runs fn and converts a returned error or a panic into a JoinError.
func invoke(fn func() error) (jerr *JoinError) {
	defer func() {
		if r := recover(); r != nil {
			var err error
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
			jerr = &JoinError{Err: err, Panic: r, Stack: debug.Stack()}
		}
	}()
	if err := fn(); err != nil {
		return &JoinError{Err: err}
	}
	return nil
}
