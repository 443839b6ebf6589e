package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	probeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_health_probe_executions_total",
			Help: "The total number of health probe executions",
		},
		[]string{"key", "status"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_health_cache_hits_total",
			Help: "The total number of health evaluations answered from cache",
		},
		[]string{"key"},
	)

	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "storage_health_probe_duration_seconds",
			Help: "The health probe latencies in seconds",
		},
		[]string{"key"},
	)
)

func init() {
	prometheus.MustRegister(probeExecutions)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(probeDuration)
}

// GetProbeExecutions returns the probe execution counter.
func GetProbeExecutions() *prometheus.CounterVec {
	return probeExecutions
}

// GetCacheHits returns the cache hit counter.
func GetCacheHits() *prometheus.CounterVec {
	return cacheHits
}

// GetProbeDuration returns the probe latency histogram.
func GetProbeDuration() *prometheus.HistogramVec {
	return probeDuration
}
