package storyteller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments Listener processing. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	eventsHandled    prometheus.Counter
	handlerFaults    *prometheus.CounterVec
	handleDuration   prometheus.Histogram
	listenersRunning prometheus.Gauge
	queueDepth       prometheus.Gauge
}

// NewMetrics registers the listener collectors against reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storyteller_events_handled_total",
			Help: "Events passed to a handler by a listener.",
		}),
		handlerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyteller_handler_faults_total",
			Help: "Handler faults that terminated a listener, partitioned by phase.",
		}, []string{"phase"}),
		handleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storyteller_handle_duration_seconds",
			Help:    "Time spent in a single Handle call.",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		listenersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyteller_listeners_running",
			Help: "Listener goroutines currently processing events.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storyteller_queue_depth",
			Help: "Events waiting in the event channel, sampled after each receive.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		m.eventsHandled,
		m.handlerFaults,
		m.handleDuration,
		m.listenersRunning,
		m.queueDepth,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register listener collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.listenersRunning.Inc()
}

func (m *Metrics) stopped() {
	if m == nil {
		return
	}
	m.listenersRunning.Dec()
}

func (m *Metrics) observeHandle(d time.Duration, depth int) {
	if m == nil {
		return
	}
	m.eventsHandled.Inc()
	m.handleDuration.Observe(d.Seconds())
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) observeFault(inFinish bool) {
	if m == nil {
		return
	}
	phase := "handle"
	if inFinish {
		phase = "finish"
	}
	m.handlerFaults.WithLabelValues(phase).Inc()
}
