package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	metricLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "loads_total",
		Help:      "Total successful model loads",
	})

	metricLoadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "load_failures_total",
		Help:      "Total failed model loads",
	})

	metricLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "load_duration_seconds",
		Help:      "Duration of successful model loads in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	metricEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "evictions_total",
		Help:      "Total model evictions by reason",
	}, []string{"reason"})

	metricResident = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "resident_models",
		Help:      "Models currently resident in accelerator memory",
	})

	metricDiskReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "starweaved",
		Subsystem: "manager",
		Name:      "disk_reclaimed_bytes_total",
		Help:      "Bytes reclaimed by disk cache eviction",
	})
)

func init() {
	prometheus.MustRegister(
		metricLoads,
		metricLoadFailures,
		metricLoadDuration,
		metricEvictions,
		metricResident,
		metricDiskReclaimed,
	)
}
