// Package metrics holds the Prometheus collectors for the registration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. Construct with New against a registry so
// tests can use an isolated prometheus.NewRegistry().
type Metrics struct {
	Reservations        *prometheus.CounterVec
	Releases            *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	Compensations       *prometheus.CounterVec
	InvariantViolations prometheus.Counter
	Notifications       *prometheus.CounterVec
	ReconciledUnits     prometheus.Counter
	StoreLatency        *prometheus.HistogramVec
}

// New creates and registers all collectors with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventreg_reservations_total",
				Help: "Ticket unit reservation attempts by outcome",
			},
			[]string{"outcome"},
		),
		Releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventreg_releases_total",
				Help: "Ticket unit releases by outcome",
			},
			[]string{"outcome"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventreg_transitions_total",
				Help: "State transitions applied per entity type",
			},
			[]string{"entity", "to"},
		),
		Compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventreg_compensations_total",
				Help: "Compensating releases after partial registration failures",
			},
			[]string{"stage"},
		),
		InvariantViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventreg_invariant_violations_total",
				Help: "Capacity or state invariant violations detected",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventreg_notifications_total",
				Help: "Notification dispatch outcomes",
			},
			[]string{"outcome"},
		),
		ReconciledUnits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventreg_reconciled_units_total",
				Help: "Orphaned ticket units released by the reconciliation sweep",
			},
		),
		StoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventreg_allocator_seconds",
				Help:    "Latency of allocator store calls",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Reservations,
			m.Releases,
			m.Transitions,
			m.Compensations,
			m.InvariantViolations,
			m.Notifications,
			m.ReconciledUnits,
			m.StoreLatency,
		)
	}
	return m
}

// Discard returns unregistered collectors for tests and tools.
func Discard() *Metrics {
	return New(nil)
}
