package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	signInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_signins_total",
			Help: "Sign-in attempts by path and outcome.",
		},
		[]string{"path", "status"},
	)
	codesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_verification_codes_issued_total",
			Help: "Total one-time verification codes issued.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, signInsTotal, codesIssuedTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
