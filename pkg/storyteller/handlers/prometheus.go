package handlers

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample is what the Prometheus handler records for one event.
type Sample struct {
	// Kind labels the event counter; empty becomes "unknown".
	Kind string
	// Value is observed in the value histogram when HasValue is set.
	Value    float64
	HasValue bool
}

// Prometheus exports event counts and optional per-kind values.
type Prometheus[E any] struct {
	events   *prometheus.CounterVec
	values   *prometheus.HistogramVec
	finished prometheus.Counter
	sample   func(E) Sample
}

// NewPrometheus registers the collectors against reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheus[E any](reg prometheus.Registerer, sample func(E) Sample) (*Prometheus[E], error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if sample == nil {
		sample = func(E) Sample { return Sample{} }
	}
	h := &Prometheus[E]{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyteller_events_total",
			Help: "Events observed by the Prometheus handler partitioned by kind.",
		}, []string{"kind"}),
		values: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyteller_event_value",
			Help:    "Numeric values carried by events partitioned by kind.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 10, 100},
		}, []string{"kind"}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyteller_streams_finished_total",
			Help: "Event streams that reached Finish.",
		}),
		sample: sample,
	}
	for _, collector := range []prometheus.Collector{h.events, h.values, h.finished} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register handler collector: %w", err)
		}
	}
	return h, nil
}

// Handle updates the collectors for evt.
func (h *Prometheus[E]) Handle(evt E) error {
	s := h.sample(evt)
	kind := s.Kind
	if kind == "" {
		kind = "unknown"
	}
	h.events.WithLabelValues(kind).Inc()
	if s.HasValue {
		h.values.WithLabelValues(kind).Observe(s.Value)
	}
	return nil
}

// Finish counts the completed stream.
func (h *Prometheus[E]) Finish() error {
	h.finished.Inc()
	return nil
}
