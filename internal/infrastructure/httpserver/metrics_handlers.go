package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "The total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "The HTTP request latencies in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_api_rate_limited_total",
			Help: "Storage API requests rejected by the rate limiter",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(rateLimitedTotal)
}

// GetRequestsTotal returns the requests total metric for middleware use
func GetRequestsTotal() *prometheus.CounterVec {
	return requestsTotal
}

// GetRequestDuration returns the request duration metric for middleware use
func GetRequestDuration() *prometheus.HistogramVec {
	return requestDuration
}

// GetRateLimitedTotal returns the rate limiter rejection counter for middleware use
func GetRateLimitedTotal() *prometheus.CounterVec {
	return rateLimitedTotal
}

// LogMetricsInitialization logs the exported metric families.
func (s *Server) LogMetricsInitialization() {
	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"http_requests_total":                   "HTTP requests by method, endpoint, status",
			"http_request_duration_seconds":         "HTTP request latency by method, endpoint",
			"storage_health_probe_executions_total": "Health probe runs by evaluator key and status",
			"storage_health_cache_hits_total":       "Health results served from cache by evaluator key",
			"storage_health_probe_duration_seconds": "Health probe latency by evaluator key",
			"redis_cache_operations_total":          "Metadata cache operations by op and result",
			"storage_api_rate_limited_total":        "Storage API requests rejected by provider",
			"metrics_endpoint":                      "/metrics",
		}).Info("Prometheus metrics registered")
	}
}

// metricsEndpoint serves the default Prometheus registry.
func (s *Server) metricsEndpoint(c echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
