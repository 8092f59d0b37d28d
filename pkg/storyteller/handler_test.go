package storyteller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storyteller/pkg/storyteller/storytest"
)

type summingHandler struct {
	sum      int
	finished bool
}

func (h *summingHandler) Handle(evt myEvent) error {
	h.sum += evt.N
	return nil
}

func (h *summingHandler) Finish() error {
	h.finished = true
	return nil
}

// TestMultiHandlerFansOutToEveryChild verifies order, Finish forwarding and typed registration.
func TestMultiHandlerFansOutToEveryChild(t *testing.T) {
	t.Parallel()

	multi := NewMultiHandler[myEvent]()
	counting := Register(multi, storytest.NewCounter[myEvent]())
	summing := Register(multi, &summingHandler{})
	require.Equal(t, 0, counting.Index())
	require.Equal(t, 1, summing.Index())
	require.Equal(t, 2, multi.Len())

	reporter, listener := NewPair[myEvent](ModeRendezvous)
	fin, err := listener.RunHandler(multi)
	require.NoError(t, err)
	sendEvents(t, reporter, 5)
	require.NoError(t, reporter.Disconnect(context.Background()))
	require.NoError(t, fin.FinishProcessing(context.Background()))

	require.Equal(t, 5, counting.Handler().Count())
	require.Equal(t, 1, counting.Handler().Finishes())
	require.Equal(t, 0+1+2+3+4, summing.Handler().sum)
	require.True(t, summing.Handler().finished)
}

// TestMultiHandlerStopsAtFirstError wraps the failing child's index.
func TestMultiHandlerStopsAtFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	multi := NewMultiHandler[myEvent]()
	multi.Add(HandlerFunc[myEvent](func(myEvent) error { return boom }))
	after := Register(multi, storytest.NewCounter[myEvent]())

	err := multi.Handle(myEvent{})
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "handler 0: boom")
	require.Equal(t, 0, after.Handler().Count())

	multi.Add(&failingFinishHandler{})
	require.EqualError(t, multi.Finish(), "handler 2 finish: finish failed")
	require.Equal(t, 1, after.Handler().Finishes())
}

// TestMultiHandlerClonesPerChild gives each child its own copy of the event.
func TestMultiHandlerClonesPerChild(t *testing.T) {
	t.Parallel()

	clones := 0
	multi := NewMultiHandler(WithCloner(func(evt []int) []int {
		clones++
		return append([]int(nil), evt...)
	}))
	multi.Add(HandlerFunc[[]int](func(evt []int) error {
		evt[0] = 99
		return nil
	}))
	second := Register(multi, storytest.NewRecorder[[]int]())

	original := []int{1, 2}
	require.NoError(t, multi.Handle(original))
	require.Equal(t, 2, clones)
	require.Equal(t, []int{1, 2}, original)
	require.Equal(t, [][]int{{1, 2}}, second.Handler().Events())
}

// TestHandlerFuncFinishIsNoop covers the function adapter.
func TestHandlerFuncFinishIsNoop(t *testing.T) {
	t.Parallel()

	var seen []int
	h := HandlerFunc[int](func(evt int) error {
		seen = append(seen, evt)
		return nil
	})
	require.NoError(t, h.Handle(3))
	require.NoError(t, h.Finish())
	require.Equal(t, []int{3}, seen)
}
