package storyteller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDisconnectChannelIsSynchronous verifies Acknowledge only returns once Recv takes it.
func TestDisconnectChannelIsSynchronous(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	acked := make(chan error, 1)
	go func() {
		acked <- ackSender.Acknowledge(context.Background())
	}()

	select {
	case <-acked:
		t.Fatal("acknowledge returned without a receiver")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, ackReceiver.Recv(context.Background()))
	select {
	case err := <-acked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acknowledge did not return after receive")
	}
}

// TestDisconnectChannelSingleUse rejects a second acknowledgment.
func TestDisconnectChannelSingleUse(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	go func() {
		_ = ackReceiver.Recv(context.Background())
	}()
	require.NoError(t, ackSender.Acknowledge(context.Background()))
	require.ErrorIs(t, ackSender.Acknowledge(context.Background()), ErrAlreadyAcknowledged)
}

// TestDisconnectChannelReceiverGone fails the sender when the receiver was closed.
func TestDisconnectChannelReceiverGone(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	ackReceiver.Close()
	ackReceiver.Close()
	require.ErrorIs(t, ackSender.Acknowledge(context.Background()), ErrAckReceiverGone)
}

// TestDisconnectChannelSenderGone fails the receiver when the sender vanished.
func TestDisconnectChannelSenderGone(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- ackReceiver.Recv(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	ackSender.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrNoAcknowledgment)
	case <-time.After(time.Second):
		t.Fatal("receiver did not observe sender close")
	}
}

// TestDisconnectChannelContextBoundsWait ensures both sides honor ctx.
func TestDisconnectChannelContextBoundsWait(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ackReceiver.Recv(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, ackSender.Acknowledge(ctx), context.DeadlineExceeded)
}

// TestDisconnectChannelRetryAfterFailedAcknowledge keeps the slot when nothing was delivered.
func TestDisconnectChannelRetryAfterFailedAcknowledge(t *testing.T) {
	t.Parallel()

	ackSender, ackReceiver := NewDisconnectChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ackSender.Acknowledge(ctx), context.Canceled)

	received := make(chan error, 1)
	go func() {
		received <- ackReceiver.Recv(context.Background())
	}()
	require.NoError(t, ackSender.Acknowledge(context.Background()))
	require.NoError(t, <-received)
	require.ErrorIs(t, ackSender.Acknowledge(context.Background()), ErrAlreadyAcknowledged)
}
