// Package metrics holds the Prometheus collectors shared by the engine,
// the query service and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietinsights_reloads_total",
		Help: "Dataset reload attempts by result",
	}, []string{"result"})

	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dietinsights_snapshot_version",
		Help: "Version of the snapshot currently served",
	})

	SnapshotRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dietinsights_snapshot_records",
		Help: "Accepted records in the current snapshot",
	})

	RejectedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dietinsights_snapshot_rejected_rows",
		Help: "Rows rejected while building the current snapshot",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietinsights_cache_lookups_total",
		Help: "Query cache lookups by result",
	}, []string{"result"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dietinsights_query_duration_seconds",
		Help:    "Query computation time on cache miss",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"kind"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dietinsights_query_errors_total",
		Help: "Failed queries by error kind",
	}, []string{"kind"})
)
