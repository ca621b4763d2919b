// Package metrics provides Prometheus metrics collection for modgate.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modgate"

// Collector holds all Prometheus metrics for modgate.
type Collector struct {
	// Request metrics
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec
	RouteNotFound      *prometheus.CounterVec
	UnhandledErrors    prometheus.Counter

	// Bootstrap metrics
	LifecyclePhaseDuration *prometheus.HistogramVec
	LifecycleFailures      *prometheus.CounterVec
	DiscoveryFailures      *prometheus.CounterVec
	ModulesDiscoveredGauge *prometheus.GaugeVec
	RoutesSkipped          *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests served by compiled routes",
			},
			[]string{"router", "method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"router", "method", "route"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Requests rejected by route validation",
			},
			[]string{"router", "kind"},
		),
		RouteNotFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_not_found_total",
				Help:      "Requests answered with 404, by the layer that answered",
			},
			[]string{"source"},
		),
		UnhandledErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unhandled_errors_total",
				Help:      "Errors and panics that reached the terminal error handler",
			},
		),

		LifecyclePhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_phase_duration_seconds",
				Help:      "Time spent running one lifecycle phase for one module kind",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"kind", "phase"},
		),
		LifecycleFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_failures_total",
				Help:      "Lifecycle hooks that returned an error",
			},
			[]string{"kind", "phase"},
		),
		DiscoveryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_failures_total",
				Help:      "Module candidates that could not be loaded",
			},
			[]string{"reason"},
		),
		ModulesDiscoveredGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_discovered",
				Help:      "Modules registered after discovery",
			},
			[]string{"kind"},
		),
		RoutesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_skipped_total",
				Help:      "Declared routes dropped during compilation",
			},
			[]string{"router", "reason"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ObserveRequest records one request served by a route layer. route is the
// declared pattern, not the concrete path, to keep cardinality bounded.
func (c *Collector) ObserveRequest(router, method, route string, status int, d time.Duration) {
	c.RequestsTotal.WithLabelValues(router, method, route, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(router, method, route).Observe(d.Seconds())
}

// ValidationFailed counts a rejected request.
func (c *Collector) ValidationFailed(router, kind string) {
	c.ValidationFailures.WithLabelValues(router, kind).Inc()
}

// NotFound counts a 404 by the layer that answered it: "predictive",
// "static" or "fallthrough".
func (c *Collector) NotFound(source string) {
	c.RouteNotFound.WithLabelValues(source).Inc()
}

// Unhandled counts an error that reached the terminal handler.
func (c *Collector) Unhandled() {
	c.UnhandledErrors.Inc()
}

// RouteSkipped counts a route dropped during compilation.
func (c *Collector) RouteSkipped(router, reason string) {
	c.RoutesSkipped.WithLabelValues(router, reason).Inc()
}

// PhaseObserved records the duration of a lifecycle phase.
func (c *Collector) PhaseObserved(kind, phase string, d time.Duration) {
	c.LifecyclePhaseDuration.WithLabelValues(kind, phase).Observe(d.Seconds())
}

// LifecycleFailed counts a failing lifecycle hook.
func (c *Collector) LifecycleFailed(kind, phase string) {
	c.LifecycleFailures.WithLabelValues(kind, phase).Inc()
}

// DiscoveryFailed counts a module candidate that failed to load.
func (c *Collector) DiscoveryFailed(reason string) {
	c.DiscoveryFailures.WithLabelValues(reason).Inc()
}

// ModulesDiscovered sets the number of registered modules of a kind.
func (c *Collector) ModulesDiscovered(kind string, n int) {
	c.ModulesDiscoveredGauge.WithLabelValues(kind).Set(float64(n))
}

// ConfigReloaded records a reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// StatusClass maps a status code to "2xx", "4xx", etc.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
