// Package storytest provides handlers for asserting on event streams in tests.
//
// Read a handler's state only after FinalizeHandle.FinishProcessing (or a
// rendezvous Disconnect) has returned; before that the listener goroutine may
// still be handling events.
package storytest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/assert"
)

// Recorder records every event it handles, in order.
type Recorder[E any] struct {
	mu       sync.Mutex
	events   []E
	finishes atomic.Int64
}

// NewRecorder returns an empty Recorder.
func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{}
}

// Handle appends evt.
func (r *Recorder[E]) Handle(evt E) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Finish counts the call.
func (r *Recorder[E]) Finish() error {
	r.finishes.Add(1)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder[E]) Events() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, len(r.events))
	copy(out, r.events)
	return out
}

// Finishes reports how many times Finish ran.
func (r *Recorder[E]) Finishes() int {
	return int(r.finishes.Load())
}

// Expectation verifies that it receives exactly the expected events in order.
// A mismatching or surplus event fails Handle; a short stream fails Finish.
// Either failure surfaces from FinishProcessing as a *storyteller.JoinError.
type Expectation[E any] struct {
	expected []E
	nth      atomic.Int64
}

// Expect builds an Expectation for the given sequence.
func Expect[E any](expected ...E) *Expectation[E] {
	return &Expectation[E]{expected: append([]E(nil), expected...)}
}

// Handle compares evt with the next expected event.
func (x *Expectation[E]) Handle(evt E) error {
	nth := x.nth.Load()
	if nth >= int64(len(x.expected)) {
		return fmt.Errorf("unexpected event #%d %+v: expected only %d events", nth, evt, len(x.expected))
	}
	if want := x.expected[nth]; !assert.ObjectsAreEqual(want, evt) {
		return fmt.Errorf("event #%d: expected %+v, got %+v", nth, want, evt)
	}
	x.nth.Add(1)
	return nil
}

// Finish checks that every expected event arrived.
func (x *Expectation[E]) Finish() error {
	if got, want := x.nth.Load(), len(x.expected); got != int64(want) {
		return fmt.Errorf("received %d events, expected %d", got, want)
	}
	return nil
}

// Received reports how many events matched so far.
func (x *Expectation[E]) Received() int {
	return int(x.nth.Load())
}

// Counter counts events and Finish calls.
type Counter[E any] struct {
	events   atomic.Int64
	finishes atomic.Int64
}

// NewCounter returns a zeroed Counter.
func NewCounter[E any]() *Counter[E] {
	return &Counter[E]{}
}

// Handle increments the event count.
func (c *Counter[E]) Handle(E) error {
	c.events.Add(1)
	return nil
}

// Finish increments the finish count.
func (c *Counter[E]) Finish() error {
	c.finishes.Add(1)
	return nil
}

// Count reports the number of handled events.
func (c *Counter[E]) Count() int {
	return int(c.events.Load())
}

// Finishes reports how many times Finish ran.
func (c *Counter[E]) Finishes() int {
	return int(c.finishes.Load())
}
