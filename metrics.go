package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts activity events by type and reason
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink registers its collectors with reg. A nil reg uses the
// default registerer.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication events by type and failure reason.",
		},
		[]string{"event", "reason"},
	)

	if err := reg.Register(events); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		events = existing
	}

	return &MetricsSink{events: events}, nil
}

// Record implements ActivitySink
func (m *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType), event.Reason).Inc()
	return nil
}

// Collector exposes the underlying counter, mostly for tests
func (m *MetricsSink) Collector() *prometheus.CounterVec {
	return m.events
}
