package storyteller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type rendezvous struct {
	ch           chan struct{}
	senderGone   chan struct{}
	receiverGone chan struct{}
	senderOnce   sync.Once
	receiverOnce sync.Once
	state        atomic.Int32
}

const (
	ackIdle int32 = iota
	ackSending
	ackSent
)

// NewDisconnectChannel creates the single-use, zero-buffer channel a Listener
// uses to tell its Reporter that the handler has finished.
func NewDisconnectChannel() (*AckSender, *AckReceiver) {
	rv := &rendezvous{
		ch:           make(chan struct{}),
		senderGone:   make(chan struct{}),
		receiverGone: make(chan struct{}),
	}
	return &AckSender{rv: rv}, &AckReceiver{rv: rv}
}

// AckSender is the listener side of the disconnect rendezvous.
type AckSender struct {
	rv *rendezvous
}

// Acknowledge blocks until the matching AckReceiver.Recv takes the
// acknowledgment. Only one call may succeed; a call that fails without
// delivering leaves the slot free for a retry. A call made while another is
// still waiting returns ErrAlreadyAcknowledged.
func (s *AckSender) Acknowledge(ctx context.Context) error {
	if !s.rv.state.CompareAndSwap(ackIdle, ackSending) {
		return ErrAlreadyAcknowledged
	}
	select {
	case s.rv.ch <- struct{}{}:
		s.rv.state.Store(ackSent)
		return nil
	case <-s.rv.receiverGone:
		s.rv.state.Store(ackIdle)
		return ErrAckReceiverGone
	case <-ctx.Done():
		s.rv.state.Store(ackIdle)
		return fmt.Errorf("acknowledge disconnect: %w", ctx.Err())
	}
}

// Close marks the sender as gone so a waiting receiver fails instead of
// blocking forever. Safe to call more than once.
func (s *AckSender) Close() {
	s.rv.senderOnce.Do(func() { close(s.rv.senderGone) })
}

// AckReceiver is the reporter side of the disconnect rendezvous.
type AckReceiver struct {
	rv *rendezvous
}

// Recv blocks until the listener acknowledges. It returns ErrNoAcknowledgment
// if the AckSender is closed without sending.
func (r *AckReceiver) Recv(ctx context.Context) error {
	select {
	case <-r.rv.ch:
		return nil
	case <-r.rv.senderGone:
		return ErrNoAcknowledgment
	case <-ctx.Done():
		return fmt.Errorf("await disconnect acknowledgment: %w", ctx.Err())
	}
}

// Close marks the receiver as gone. Safe to call more than once.
func (r *AckReceiver) Close() {
	r.rv.receiverOnce.Do(func() { close(r.rv.receiverGone) })
}
