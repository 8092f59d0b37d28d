package storyteller

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrChannelClosed is returned by EventReceiver.Recv once every sender has
	// been closed and no events remain. It marks the end of the stream.
	ErrChannelClosed = errors.New("event channel closed")
	// ErrSenderClosed is returned when sending through a sender handle that was
	// already closed.
	ErrSenderClosed = errors.New("event sender closed")
	// ErrReceiverGone signals that no receiver handle remains to consume events.
	ErrReceiverGone = errors.New("event receiver gone")
	// ErrReporterDisconnected is returned by a Reporter after Disconnect.
	ErrReporterDisconnected = errors.New("reporter disconnected")
	// ErrNoAcknowledgment is returned by a rendezvous Disconnect when the
	// listener vanished without acknowledging the disconnect.
	ErrNoAcknowledgment = errors.New("listener did not acknowledge disconnect")
	// ErrAckReceiverGone is returned by AckSender.Acknowledge when the
	// receiving side was closed before the acknowledgment was taken.
	ErrAckReceiverGone = errors.New("disconnect receiver gone")
	// ErrAlreadyAcknowledged is returned once an acknowledgment was delivered or is in flight.
	ErrAlreadyAcknowledged = errors.New("disconnect already acknowledged")
	// ErrListenerStarted is returned when RunHandler is called twice.
	ErrListenerStarted = errors.New("listener already running a handler")
	// ErrHandlerFault is the sentinel wrapped by every JoinError.
	ErrHandlerFault = errors.New("handler fault")
)

// SendError is returned when an event cannot be enqueued. The event is handed
// back to the caller untouched.
type SendError[E any] struct {
	Event E
	Err   error
}

func (e *SendError[E]) Error() string {
	return fmt.Sprintf("send %s: %v", typeName[E](), e.Err)
}

func (e *SendError[E]) Unwrap() error {
	return e.Err
}

// EventDroppedError is returned by Reporter.ReportEvent when the listener side
// has gone away. Event carries the original value so callers can recover it.
type EventDroppedError[E any] struct {
	Event E
	Err   error
}

func (e *EventDroppedError[E]) Error() string {
	return fmt.Sprintf("event dropped: %v", e.Err)
}

func (e *EventDroppedError[E]) Unwrap() error {
	return e.Err
}

// JoinError reports that the processing goroutine terminated abnormally.
// Events still queued at the time of the fault were never handled.
type JoinError struct {
	// Err is the error returned by the handler, or a synthesized error for a panic.
	Err error
	// Panic holds the recovered value when the handler panicked.
	Panic any
	// Stack is the goroutine stack captured at the panic site.
	Stack []byte
	// Handled counts events passed to Handle before the fault, including the faulting one.
	Handled int64
	// InFinish is true when the fault happened in Finish rather than Handle.
	InFinish bool
}

func (e *JoinError) Error() string {
	where := "handle"
	if e.InFinish {
		where = "finish"
	}
	if e.Panic != nil {
		return fmt.Sprintf("%v: panic in %s after %d events: %v", ErrHandlerFault, where, e.Handled, e.Panic)
	}
	return fmt.Sprintf("%v: %s failed after %d events: %v", ErrHandlerFault, where, e.Handled, e.Err)
}

// Unwrap exposes both the fault sentinel and the underlying handler error.
func (e *JoinError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHandlerFault}
	}
	return []error{ErrHandlerFault, e.Err}
}

func typeName[E any]() string {
	t := reflect.TypeOf((*E)(nil)).Elem()
	return t.String()
}
