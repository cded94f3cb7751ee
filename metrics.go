package framegraph

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	compileDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framegraph_compile_duration_seconds",
			Help:    "Duration of graph compiles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	compilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_compiles_total",
			Help: "Total number of graph compiles by result",
		},
		[]string{"result"},
	)

	stagesCulledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "framegraph_stages_culled_total",
			Help: "Total number of stages culled as having no observable effect",
		},
	)

	barriersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_barriers_total",
			Help: "Total number of barriers emitted by kind",
		},
		[]string{"kind"},
	)

	poolAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_pool_acquires_total",
			Help: "Total number of physical resource acquisitions by result",
		},
		[]string{"result"},
	)

	poolBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "framegraph_pool_bytes",
			Help: "Estimated bytes held by the resource pool",
		},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_submissions_total",
			Help: "Total number of queue submissions per queue",
		},
		[]string{"queue"},
	)
)

// Collectors returns every framegraph metric collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		compileDurationSeconds,
		compilesTotal,
		stagesCulledTotal,
		barriersTotal,
		poolAcquiresTotal,
		poolBytes,
		submissionsTotal,
	}
}

// RegisterMetrics registers the framegraph collectors with reg. Collectors
// already registered with reg are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
