package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the auth and transport layers.
type Recorder interface {
	RecordAuthOutcome(operation, outcome string)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordRateLimited(route string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	authOutcomes *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_auth_outcomes_total",
			Help: "Auth operations by operation and outcome (ok or rejection reason).",
		}, []string{"operation", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receipts_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"route"}),
	}

	reg.MustRegister(c.authOutcomes, c.httpRequests, c.httpLatency, c.rateLimited)
	return c
}

func (c *Collector) RecordAuthOutcome(operation, outcome string) {
	c.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every datapoint.
type Nop struct{}

func (Nop) RecordAuthOutcome(string, string)                     {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordRateLimited(string)                             {}
