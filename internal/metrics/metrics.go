// Package metrics defines the Prometheus collectors of the registrar.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Registration outcomes.
const (
	OutcomeCreated        = "created"
	OutcomeInvalid        = "invalid"
	OutcomeRejectedUpload = "rejected_upload"
	OutcomeFailed         = "failed"
)

// Metrics groups every collector.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	ArchiveEntries  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_registrations_total",
			Help: "Registration submissions by outcome.",
		}, []string{"outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_exports_total",
			Help: "Excel and photo archive exports by outcome.",
		}, []string{"kind", "outcome"}),
		ArchiveEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_archive_entries_total",
			Help: "Photos added to or skipped from archives.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registrar_rate_limited_total",
			Help: "Submissions rejected by the rate limiter.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Registrations, m.Exports, m.ArchiveEntries, m.RequestDuration, m.RateLimited)
	}
	return m
}

// Instrument observes request latency by matched route.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
