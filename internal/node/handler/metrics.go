package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	nodeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_node_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	nodeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landreg_node_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	nodeLedgerWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_node_ledger_writes_total",
		Help: "Total ledger entries appended through the node, by kind.",
	}, []string{"kind"})

	nodeUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landreg_node_uploads_total",
		Help: "Total media uploads by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		nodeRequestsTotal.WithLabelValues(method, path, status).Inc()
		nodeRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerWrite records an appended ledger entry of the given kind.
func RecordLedgerWrite(kind string) {
	nodeLedgerWritesTotal.WithLabelValues(kind).Inc()
}

// RecordUpload records a media upload attempt.
func RecordUpload(success bool) {
	if success {
		nodeUploadsTotal.WithLabelValues("success").Inc()
	} else {
		nodeUploadsTotal.WithLabelValues("failure").Inc()
	}
}

var nodeChainChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "landreg_node_chain_checks_total",
	Help: "Total ledger chain verifications by result.",
}, []string{"result"})

// RecordChainCheck records a periodic chain verification result.
func RecordChainCheck(success bool) {
	if success {
		nodeChainChecksTotal.WithLabelValues("success").Inc()
	} else {
		nodeChainChecksTotal.WithLabelValues("failure").Inc()
	}
}
