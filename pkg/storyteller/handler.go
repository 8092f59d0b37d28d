package storyteller

import "fmt"

// Handler reacts to events delivered by a Listener. Handle is called once per
// event in delivery order and never concurrently for the same Listener. Finish
// is called exactly once, after the last Handle, when the event channel has
// been observed closed.
//
// A returned error or a panic is a handler fault: the processing goroutine
// stops, remaining events are not handled, and the fault is reported by
// FinalizeHandle.FinishProcessing. Handlers run on a background goroutine and
// must not block indefinitely.
type Handler[E any] interface {
	Handle(evt E) error
	Finish() error
}

// HandlerFunc adapts a function to the Handler interface. Its Finish is a no-op.
type HandlerFunc[E any] func(evt E) error

// Handle calls f(evt).
func (f HandlerFunc[E]) Handle(evt E) error {
	return f(evt)
}

// Finish implements Handler.
func (HandlerFunc[E]) Finish() error {
	return nil
}

// MultiOption configures a MultiHandler.
type MultiOption[E any] func(*MultiHandler[E])

// WithCloner gives every child handler its own copy of each event, produced
// by clone. Without a cloner children receive the same value.
func WithCloner[E any](clone func(E) E) MultiOption[E] {
	return func(m *MultiHandler[E]) {
		m.clone = clone
	}
}

// MultiHandler forwards every Handle and Finish call to its children in
// registration order. Register children before the handler is run.
type MultiHandler[E any] struct {
	children []Handler[E]
	clone    func(E) E
}

// NewMultiHandler builds an empty composite handler.
func NewMultiHandler[E any](opts ...MultiOption[E]) *MultiHandler[E] {
	m := &MultiHandler[E]{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registration is a typed reference to a child of a MultiHandler, returned by
// Register so callers can inspect the child later without type assertions.
type Registration[H any] struct {
	handler H
	index   int
}

// Handler returns the registered child.
func (r Registration[H]) Handler() H {
	return r.handler
}

// Index returns the child's position in the composite.
func (r Registration[H]) Index() int {
	return r.index
}

// Register appends h to m and returns a typed reference to it.
func Register[E any, H Handler[E]](m *MultiHandler[E], h H) Registration[H] {
	m.children = append(m.children, h)
	return Registration[H]{handler: h, index: len(m.children) - 1}
}

// Add appends h to m.
func (m *MultiHandler[E]) Add(h Handler[E]) {
	m.children = append(m.children, h)
}

// Len reports the number of children.
func (m *MultiHandler[E]) Len() int {
	return len(m.children)
}

// Handle forwards evt to each child in order. The first child error stops
// the fan-out.
func (m *MultiHandler[E]) Handle(evt E) error {
	for i, child := range m.children {
		view := evt
		if m.clone != nil {
			view = m.clone(evt)
		}
		if err := child.Handle(view); err != nil {
			return fmt.Errorf("handler %d: %w", i, err)
		}
	}
	return nil
}

// Finish finishes each child in order. The first child error stops the loop.
func (m *MultiHandler[E]) Finish() error {
	for i, child := range m.children {
		if err := child.Finish(); err != nil {
			return fmt.Errorf("handler %d finish: %w", i, err)
		}
	}
	return nil
}
