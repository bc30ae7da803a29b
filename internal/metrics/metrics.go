// Package metrics holds the prometheus collectors the service exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registration outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeDuplicate   = "duplicate"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// Metrics groups every collector. Use New to register them.
type Metrics struct {
	Registrations     *prometheus.CounterVec
	EventsCreated     prometheus.Counter
	FeedSubscriptions prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "events",
			Name:      "events_created_total",
			Help:      "Events published.",
		}),
		FeedSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "events",
			Name:      "feed_subscriptions",
			Help:      "Live event feed subscriptions.",
		}),
	}
	reg.MustRegister(m.Registrations, m.EventsCreated, m.FeedSubscriptions)
	return m
}
