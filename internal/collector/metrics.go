package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics собирает счетчики ingest-плоскости коллектора.
// При reg == nil метрики регистрируются в приватном реестре (Null Object),
// что позволяет тестам и cli-утилитам не тащить за собой prometheus endpoint.
type Metrics struct {
	EventsIngested  *prometheus.CounterVec
	SnapshotsStored *prometheus.CounterVec
	SnapshotBytes   prometheus.Histogram
	FlaggedTotal    prometheus.Counter
	RejectedTotal   *prometheus.CounterVec
	PipelineBuffer  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "examguard_events_ingested_total",
			Help: "Number of proctoring events accepted by the collector.",
		}, []string{"type", "severity"}),
		SnapshotsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "examguard_snapshots_stored_total",
			Help: "Number of snapshots written to media storage.",
		}, []string{"kind"}),
		SnapshotBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "examguard_snapshot_bytes",
			Help:    "Size of stored snapshots after recompression.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		FlaggedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "examguard_attempts_flagged_total",
			Help: "Number of attempts auto-flagged by the sliding window rule.",
		}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "examguard_requests_rejected_total",
			Help: "Number of rejected agent requests by reason.",
		}, []string{"reason"}),
		PipelineBuffer: factory.NewGauge(prometheus.GaugeOpts{
			Name: "examguard_event_pipeline_buffer",
			Help: "Current depth of the async event write buffer.",
		}),
	}
}
