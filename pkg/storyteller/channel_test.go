package storyteller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEventChannelDeliversInOrder verifies FIFO delivery followed by end-of-stream.
func TestEventChannelDeliversInOrder(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	ctx := context.Background()

	next := 0
	for round := 0; round < 3; round++ {
		for i := 0; i < 700; i++ {
			require.NoError(t, sender.Send(round*700+i))
		}
		// drain part of the queue between rounds to exercise compaction
		for i := 0; i < 400; i++ {
			got, err := receiver.Recv(ctx)
			require.NoError(t, err)
			require.Equal(t, next, got)
			next++
		}
	}
	require.Equal(t, 3*700-next, sender.Len())
	sender.Close()

	for ; next < 3*700; next++ {
		got, err := receiver.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, next, got)
	}
	_, err := receiver.Recv(ctx)
	require.ErrorIs(t, err, ErrChannelClosed)
	require.Equal(t, 0, receiver.Len())
}

// TestEventChannelSendAfterReceiverClosed returns the event to the caller.
func TestEventChannelSendAfterReceiverClosed(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[string]()
	require.NoError(t, sender.Send("queued"))
	receiver.Close()
	require.Equal(t, 0, sender.Len())

	err := sender.Send("late")
	require.ErrorIs(t, err, ErrReceiverGone)
	var sendErr *SendError[string]
	require.True(t, errors.As(err, &sendErr))
	require.Equal(t, "late", sendErr.Event)
	require.Contains(t, err.Error(), "string")
}

// TestEventChannelSendOnClosedHandle rejects sends through a closed sender.
func TestEventChannelSendOnClosedHandle(t *testing.T) {
	t.Parallel()

	sender, _ := NewEventChannel[int]()
	sender.Close()
	sender.Close()

	err := sender.Send(7)
	require.ErrorIs(t, err, ErrSenderClosed)
	require.ErrorIs(t, sender.Clone().Send(8), ErrSenderClosed)
}

// TestEventChannelClonedSendersKeepChannelOpen ensures the channel only closes with the last sender.
func TestEventChannelClonedSendersKeepChannelOpen(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	clone := sender.Clone()
	sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := receiver.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, clone.Send(42))
	clone.Close()

	got, err := receiver.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, got)
	_, err = receiver.Recv(context.Background())
	require.ErrorIs(t, err, ErrChannelClosed)
}

// TestEventChannelRecvBlocksUntilSend checks that a waiting receiver wakes on send.
func TestEventChannelRecvBlocksUntilSend(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	result := make(chan int, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := receiver.Recv(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- v
	}()

	select {
	case <-result:
		t.Fatal("receive returned before any send")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, sender.Send(9))
	select {
	case err := <-errCh:
		t.Fatalf("Recv() error = %v", err)
	case got := <-result:
		require.Equal(t, 9, got)
	case <-time.After(time.Second):
		t.Fatal("receiver did not wake up")
	}
}

// TestEventChannelCloseWakesReceiver ensures closing the last sender unblocks Recv.
func TestEventChannelCloseWakesReceiver(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	errCh := make(chan error, 1)
	go func() {
		_, err := receiver.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sender.Close()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(time.Second):
		t.Fatal("receiver did not observe close")
	}
}

// TestEventChannelCompetingReceivers verifies cloned receivers split events without duplicates.
func TestEventChannelCompetingReceivers(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	other := receiver.Clone()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for _, r := range []*EventReceiver[int]{receiver, other} {
		wg.Add(1)
		go func(r *EventReceiver[int]) {
			defer wg.Done()
			for {
				v, err := r.Recv(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}
		}(r)
	}

	for i := 0; i < 500; i++ {
		require.NoError(t, sender.Send(i))
	}
	sender.Close()
	wg.Wait()

	sort.Ints(got)
	require.Len(t, got, 500)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

// TestEventChannelReceiverCloneKeepsSendsAlive ensures sends only fail once every receiver is gone.
func TestEventChannelReceiverCloneKeepsSendsAlive(t *testing.T) {
	t.Parallel()

	sender, receiver := NewEventChannel[int]()
	other := receiver.Clone()
	receiver.Close()

	_, err := receiver.Recv(context.Background())
	require.ErrorIs(t, err, ErrReceiverGone)

	require.NoError(t, sender.Send(1))
	other.Close()
	require.ErrorIs(t, sender.Send(2), ErrReceiverGone)
}
