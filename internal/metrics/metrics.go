// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed ticks across all games.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polis_ticks_total",
		Help: "Completed ticks across all game instances.",
	})

	// TickDuration observes wall time per tick, advisor calls included.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polis_tick_duration_seconds",
		Help:    "Wall time of one full tick.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	// AdvisorFailures counts advisor stages that fell back, by stage.
	AdvisorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polis_advisor_failures_total",
		Help: "Advisor stage failures replaced by fallbacks.",
	}, []string{"stage"})

	// ActionsResolved counts player actions by outcome.
	ActionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polis_actions_total",
		Help: "Player actions processed per tick, by outcome.",
	}, []string{"outcome"})
)
