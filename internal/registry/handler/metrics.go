package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registryPendingRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "registry_pending_records",
		Help: "Pending certificate records by status.",
	}, []string{"status"})

	registryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	registryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	registryApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_approvals_total",
		Help: "Approval attempts by outcome.",
	}, []string{"outcome"})

	registryPinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_pins_total",
		Help: "Document pin attempts by kind and result.",
	}, []string{"kind", "result"})

	registryDependencyChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_dependency_checks_total",
		Help: "Dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})

	registryWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

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

		registryRequestsTotal.WithLabelValues(method, path, status).Inc()
		registryRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObservePending sets the pending gauge from a store snapshot. It is
// installed with pending.WithObserver.
func ObservePending(records []pending.Record) {
	counts := map[pending.Status]int{pending.StatusPending: 0, pending.StatusProcessing: 0}
	for _, r := range records {
		counts[r.Status]++
	}
	for status, n := range counts {
		registryPendingRecords.WithLabelValues(string(status)).Set(float64(n))
	}
}

// RecordApproval records the outcome of an approval attempt.
func RecordApproval(outcome model.ApprovalOutcome) {
	registryApprovalsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordDependencyCheck records a dependency probe result.
func RecordDependencyCheck(name string, success bool) {
	registryDependencyChecksTotal.WithLabelValues(name, result(success)).Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	registryWebhookDeliveriesTotal.WithLabelValues(result(success)).Inc()
}

type instrumentedPinner struct {
	service.Pinner
}

// InstrumentPinner counts pin outcomes of p.
func InstrumentPinner(p service.Pinner) service.Pinner {
	return instrumentedPinner{p}
}

func (p instrumentedPinner) PinJSON(ctx context.Context, name string, v any) (string, error) {
	cid, err := p.Pinner.PinJSON(ctx, name, v)
	registryPinsTotal.WithLabelValues("json", result(err == nil)).Inc()
	return cid, err
}

func (p instrumentedPinner) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	cid, err := p.Pinner.PinFile(ctx, name, data)
	registryPinsTotal.WithLabelValues("file", result(err == nil)).Inc()
	return cid, err
}
