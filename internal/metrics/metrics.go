// Package metrics exposes Prometheus collectors for the storage and
// transaction layers. A single Set is created per database instance and
// threaded to the components that record into it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the core collectors.
type Set struct {
	registry *prometheus.Registry

	Commits      prometheus.Counter
	Conflicts    prometheus.Counter
	Rollbacks    prometheus.Counter
	CdcRecords   prometheus.Counter
	ActiveTxns   prometheus.Gauge
	LastVersion  prometheus.Gauge
	DroppedSubs  prometheus.Counter
	QueryLatency prometheus.Histogram
}

// NewSet creates the collectors and registers them on a fresh registry.
func NewSet() *Set {
	s := &Set{registry: prometheus.NewRegistry()}

	s.Commits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowdb", Subsystem: "txn", Name: "commits_total",
		Help: "Committed transactions.",
	})
	s.Conflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowdb", Subsystem: "txn", Name: "conflicts_total",
		Help: "Transactions aborted by the conflict oracle.",
	})
	s.Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowdb", Subsystem: "txn", Name: "rollbacks_total",
		Help: "Explicit rollbacks.",
	})
	s.CdcRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowdb", Subsystem: "cdc", Name: "records_total",
		Help: "CDC records written.",
	})
	s.ActiveTxns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowdb", Subsystem: "txn", Name: "active",
		Help: "Transactions currently active.",
	})
	s.LastVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowdb", Subsystem: "txn", Name: "last_committed_version",
		Help: "Last committed version.",
	})
	s.DroppedSubs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowdb", Subsystem: "cdc", Name: "dropped_subscribers_total",
		Help: "Subscribers dropped for lagging.",
	})
	s.QueryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowdb", Subsystem: "engine", Name: "statement_seconds",
		Help:    "Statement execution latency.",
		Buckets: prometheus.DefBuckets,
	})

	s.registry.MustRegister(
		s.Commits, s.Conflicts, s.Rollbacks, s.CdcRecords,
		s.ActiveTxns, s.LastVersion, s.DroppedSubs, s.QueryLatency,
	)
	return s
}

// Registry returns the registry for HTTP exposition.
func (s *Set) Registry() *prometheus.Registry { return s.registry }
