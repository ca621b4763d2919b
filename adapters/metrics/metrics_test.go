package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/modgate/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]int {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	out := make(map[string]int, len(families))
	for _, f := range families {
		out[f.GetName()] = len(f.GetMetric())
	}
	return out
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.RequestsTotal == nil || m.RequestDuration == nil || m.UnhandledErrors == nil {
		t.Error("request metrics not initialized")
	}
	if m.LifecyclePhaseDuration == nil || m.DiscoveryFailures == nil || m.RoutesSkipped == nil {
		t.Error("bootstrap metrics not initialized")
	}
}

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveRequest("system", "GET", "/time", 200, 5*time.Millisecond)
	m.ObserveRequest("system", "GET", "/time", 204, time.Millisecond)
	m.ObserveRequest("system", "POST", "/echo", 400, time.Millisecond)

	got := gather(t, reg)
	if got["modgate_requests_total"] != 2 {
		t.Errorf("requests_total series = %d, want 2", got["modgate_requests_total"])
	}
	if got["modgate_request_duration_seconds"] != 2 {
		t.Errorf("request_duration series = %d, want 2", got["modgate_request_duration_seconds"])
	}
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("system", "GET", "/time", "2xx")); v != 2 {
		t.Errorf("2xx count = %v, want 2", v)
	}
}

func TestRequestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ValidationFailed("system", "body")
	m.ValidationFailed("system", "query")
	m.NotFound("predictive")
	m.NotFound("static")
	m.NotFound("static")
	m.Unhandled()

	if v := testutil.ToFloat64(m.RouteNotFound.WithLabelValues("static")); v != 2 {
		t.Errorf("static 404s = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.UnhandledErrors); v != 1 {
		t.Errorf("unhandled = %v, want 1", v)
	}
	if got := gather(t, reg)["modgate_validation_failures_total"]; got != 2 {
		t.Errorf("validation series = %d, want 2", got)
	}
}

func TestBootstrapMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.PhaseObserved("service", "injection", time.Millisecond)
	m.LifecycleFailed("router", "initialization")
	m.DiscoveryFailed("load")
	m.ModulesDiscovered("service", 3)
	m.ModulesDiscovered("service", 2)
	m.RouteSkipped("api", "handler_not_found")

	if v := testutil.ToFloat64(m.ModulesDiscoveredGauge.WithLabelValues("service")); v != 2 {
		t.Errorf("modules_discovered = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.LifecycleFailures.WithLabelValues("router", "initialization")); v != 1 {
		t.Errorf("lifecycle failures = %v, want 1", v)
	}

	got := gather(t, reg)
	for _, name := range []string{
		"modgate_lifecycle_phase_duration_seconds",
		"modgate_discovery_failures_total",
		"modgate_routes_skipped_total",
	} {
		if got[name] == 0 {
			t.Errorf("%s not found", name)
		}
	}
}

func TestConfigReloaded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ConfigReloaded(nil)
	m.ConfigReloaded(errors.New("bad yaml"))

	if v := testutil.ToFloat64(m.ConfigReloads); v != 1 {
		t.Errorf("reloads = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.ConfigReloadErrors); v != 1 {
		t.Errorf("reload errors = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.ConfigLastReload); v == 0 {
		t.Error("last reload timestamp not set")
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{404, "4xx"},
		{500, "5xx"},
		{0, "0"},
		{999, "999"},
	}
	for _, tt := range tests {
		if got := metrics.StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewWithRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice with the same registry should panic")
		}
	}()
	metrics.NewWithRegistry(reg)
}
