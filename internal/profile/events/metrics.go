package events

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	msgs      *prometheus.CounterVec
	published *prometheus.CounterVec
	proc      prometheus.Histogram
	lag       prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_profile_events_total",
				Help: "Received profile activation events by result.",
			},
			[]string{"result"},
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_profile_events_published_total",
				Help: "Profile activation events handed to the producer by result.",
			},
			[]string{"result"},
		),
		proc: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sos_profile_event_processing_seconds",
				Help:    "Time to apply one received activation event.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		lag: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sos_profile_event_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
	}
	if r != nil {
		m.msgs = register(r, m.msgs)
		m.published = register(r, m.published)
		m.proc = register(r, m.proc)
		m.lag = register(r, m.lag)
	}
	return m
}

// register lets the publisher and the runner share one registry: a
// collector registered before is reused.
func register[T prometheus.Collector](r prometheus.Registerer, c T) T {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
