package storyteller

import (
	"context"
	"fmt"
)

// FinalizeHandle is returned by Listener.RunHandler and lets the caller wait
// until the processing goroutine has drained the channel and terminated.
type FinalizeHandle struct {
	done chan struct{}
	err  error
}

func newFinalizeHandle() *FinalizeHandle {
	return &FinalizeHandle{done: make(chan struct{})}
}

func (f *FinalizeHandle) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the processing goroutine has terminated.
func (f *FinalizeHandle) Done() <-chan struct{} {
	return f.done
}

// FinishProcessing blocks until the processing goroutine has terminated, which
// implies the handler's Finish has run unless the handler faulted. A fault is
// returned as a *JoinError. If ctx ends first the wait is abandoned and the
// context error is returned; the goroutine keeps running. Repeated calls
// return the same outcome.
//
// The Reporter must be disconnected first, otherwise this blocks until ctx
// ends.
func (f *FinalizeHandle) FinishProcessing(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.err
	default:
	}
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return fmt.Errorf("finish processing wait: %w", ctx.Err())
	}
}
