package proctor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Violations: сработки по категориям
	ViolationsTotal *prometheus.CounterVec

	// Warnings: показанные кандидату предупреждения
	WarningsTotal prometheus.Counter

	// Snapshots: инициированные движком кадры
	SnapshotsTotal *prometheus.CounterVec

	// Terminal: дисквалификации (за сессию либо 0, либо 1)
	Disqualifications prometheus.Counter

	// Состояние сессии: 0 - normal, 1 - warning, 2 - disqualified
	SessionState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Total number of registered violations.",
		}, []string{"category"}),

		WarningsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proctor_warnings_total",
			Help: "Total number of warnings shown to the candidate.",
		}),

		SnapshotsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_snapshots_total",
			Help: "Total number of snapshots triggered by the engine.",
		}, []string{"trigger"}),

		Disqualifications: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "proctor_disqualifications_total",
			Help: "Total number of disqualifications issued.",
		}),

		SessionState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "proctor_session_state",
			Help: "Current session state (0=normal, 1=warning, 2=disqualified).",
		}),
	}
}
