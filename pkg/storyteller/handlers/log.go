package handlers

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Log emits a structured log entry per event. It is useful during development
// or audits where no durable store is available.
type Log[E any] struct {
	logger *zap.Logger
	fields func(E) []zap.Field
	events atomic.Int64
}

// NewLog wires a zap logger to the handler interface. fields maps an event to
// log fields; when nil the whole event is logged under "event".
func NewLog[E any](logger *zap.Logger, fields func(E) []zap.Field) *Log[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fields == nil {
		fields = func(evt E) []zap.Field {
			return []zap.Field{zap.Any("event", evt)}
		}
	}
	return &Log[E]{logger: logger, fields: fields}
}

// Handle logs evt at info level.
func (h *Log[E]) Handle(evt E) error {
	seq := h.events.Add(1)
	h.logger.Info("storyteller event", append(h.fields(evt), zap.Int64("seq", seq))...)
	return nil
}

// Finish logs the number of events seen.
func (h *Log[E]) Finish() error {
	h.logger.Info("event stream finished", zap.Int64("events", h.events.Load()))
	return nil
}
