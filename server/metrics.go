package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scimcore",
			Name:      "requests_total",
			Help:      "Total number of SCIM requests",
		},
		[]string{"resource", "operation", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scimcore",
			Name:      "request_duration_seconds",
			Help:      "SCIM request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"resource", "operation"},
	)
)

// MetricsMiddleware records per-operation request counters and latency
func MetricsMiddleware(resource, operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		requestsTotal.WithLabelValues(resource, operation, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(resource, operation).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the Prometheus scrape endpoint
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
