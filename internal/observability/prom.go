// Package observability holds the Prometheus collectors of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ServiceName = "drops"
)

var (
	EntriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "entries", "created_total"),
		Help: "Draw entries accepted",
	}, []string{})
	EntriesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "entries", "rejected_total"),
		Help: "Draw entries rejected by reason code",
	}, []string{"code"})
	DrawOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "draw", "entries_decided_total"),
		Help: "Entries decided by selection passes",
	}, []string{"outcome"})
	DrawDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(ServiceName, "draw", "duration_seconds"),
		Help:    "Duration of a selection pass in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{})
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "drop", "status_transitions_total"),
		Help: "Persisted drop status changes",
	}, []string{"from", "to"})
	NotificationsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(ServiceName, "notifications", "queued_total"),
		Help: "Drop live notifications handed to the broker",
	}, []string{})
	SweepDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName(ServiceName, "worker", "sweep_duration_seconds"),
		Help: "Duration of the last sweeper run in seconds",
	}, []string{})
)
