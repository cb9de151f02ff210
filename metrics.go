package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "newsdigest"

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	Deliveries      *prometheus.CounterVec
	FreshFetchFails *prometheus.CounterVec
	CacheReads      *prometheus.CounterVec
	CacheWriteFails prometheus.Counter
	LimiterRejected prometheus.Counter
	LimiterAdmitted prometheus.Counter
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deliveries_total",
				Help:      "Delivery requests by status and article source",
			},
			[]string{"status", "source"},
		),
		FreshFetchFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fresh_fetch_failures_total",
				Help:      "Failed fresh fetches by error kind",
			},
			[]string{"kind"},
		),
		CacheReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_checks_total",
				Help:      "Freshness checks by result (hit, miss, unavailable)",
			},
			[]string{"result"},
		),
		CacheWriteFails: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_write_failures_total",
				Help:      "Cache writes that failed after a successful fetch",
			},
		),
		LimiterRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "summarizer_admission_rejected_total",
				Help:      "Summarization calls rejected by the rate limiter",
			},
		),
		LimiterAdmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "summarizer_admission_admitted_total",
				Help:      "Summarization calls admitted by the rate limiter",
			},
		),
	}
}
