// Package metrics provides Prometheus metrics for ingestion and analytics queries.
package metrics

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeBot      = "bot"
	OutcomeSkipped  = "skipped"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Collector holds all Prometheus metrics for sitepulse. Each Collector owns
// its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	EventsIngested *prometheus.CounterVec
	RollupFailures prometheus.Counter
	QueryDuration  *prometheus.HistogramVec
	RateLimitHits  *prometheus.CounterVec
	AuthFailures   *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
}

// New creates a collector with every metric registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitepulse",
				Name:      "events_ingested_total",
				Help:      "Page view submissions by outcome",
			},
			[]string{"outcome"},
		),
		RollupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sitepulse",
				Name:      "rollup_failures_total",
				Help:      "Raw events stored whose rollup upserts failed",
			},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sitepulse",
				Name:      "query_duration_seconds",
				Help:      "Analytics query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"action"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitepulse",
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"action"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitepulse",
				Name:      "auth_failures_total",
				Help:      "Rejected admin requests",
			},
			[]string{"reason"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitepulse",
				Name:      "settings_cache_lookups_total",
				Help:      "Site settings cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveQuery records how long an analytics action took.
func (c *Collector) ObserveQuery(action string, started time.Time) {
	c.QueryDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

// HTTPHandler serves the registry in the Prometheus text format.
func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Handler adapts HTTPHandler to Fiber.
func (c *Collector) Handler() fiber.Handler {
	return adaptor.HTTPHandler(c.HTTPHandler())
}
