// Package metrics exposes Prometheus counters for auth and catalog activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and handlers report to.
type Recorder interface {
	RecordAuthEvent(event string)
	RecordRoleLookup(outcome string)
	RecordGuardDecision(guard, decision string)
	RecordAuthResolve(d time.Duration)
	RecordProductsImported(count int)
	RecordCacheInvalidation(prefix string)
	RecordHTTPStatus(statusCode int)
}

// Collector records to a Prometheus registry.
type Collector struct {
	authEvents         *prometheus.CounterVec
	roleLookups        *prometheus.CounterVec
	guardDecisions     *prometheus.CounterVec
	authResolve        prometheus.Histogram
	productsImported   prometheus.Counter
	cacheInvalidations *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vovo_auth_events_total",
			Help: "Session store events by type.",
		}, []string{"event"}),
		roleLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vovo_role_lookups_total",
			Help: "Profile role lookups by outcome (admin, user, error, stale).",
		}, []string{"outcome"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vovo_guard_decisions_total",
			Help: "Route guard decisions by guard and decision.",
		}, []string{"guard", "decision"}),
		authResolve: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vovo_auth_resolve_seconds",
			Help:    "Time from auth context mount to the end of loading.",
			Buckets: prometheus.DefBuckets,
		}),
		productsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vovo_products_imported_total",
			Help: "Products written by batch imports.",
		}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vovo_cache_invalidations_total",
			Help: "Query cache invalidations by key prefix.",
		}, []string{"prefix"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vovo_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authEvents,
		c.roleLookups,
		c.guardDecisions,
		c.authResolve,
		c.productsImported,
		c.cacheInvalidations,
		c.httpStatus,
	)
	return c
}

func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

func (c *Collector) RecordRoleLookup(outcome string) {
	c.roleLookups.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordGuardDecision(guard, decision string) {
	c.guardDecisions.WithLabelValues(guard, decision).Inc()
}

func (c *Collector) RecordAuthResolve(d time.Duration) {
	c.authResolve.Observe(d.Seconds())
}

func (c *Collector) RecordProductsImported(count int) {
	c.productsImported.Add(float64(count))
}

func (c *Collector) RecordCacheInvalidation(prefix string) {
	c.cacheInvalidations.WithLabelValues(prefix).Inc()
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordAuthEvent(string)             {}
func (Nop) RecordRoleLookup(string)            {}
func (Nop) RecordGuardDecision(string, string) {}
func (Nop) RecordAuthResolve(time.Duration)    {}
func (Nop) RecordProductsImported(int)         {}
func (Nop) RecordCacheInvalidation(string)     {}
func (Nop) RecordHTTPStatus(int)               {}
