package bootstrap_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/modgate/adapters/idgen"
	"github.com/artpar/modgate/bootstrap"
	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/lifecycle"
	"github.com/artpar/modgate/core/module"
	"github.com/artpar/modgate/core/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type greeter struct {
	closed  *bool
	initErr error
}

func (g *greeter) Descriptor() module.Descriptor {
	return module.NewRouter("greeter").Priority(200).Get("/hello/{name}", "Hello").Build()
}

func (g *greeter) Init(context.Context) error { return g.initErr }

func (g *greeter) Close(context.Context) error {
	if g.closed != nil {
		*g.closed = true
	}
	return nil
}

func (g *greeter) Hello(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("hello"))
}

func parseConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, opts bootstrap.Options) *bootstrap.App {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	a, err := bootstrap.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestBootstrap_Integration(t *testing.T) {
	closed := false
	a := newApp(t, bootstrap.Options{
		Config:  parseConfig(t, "metrics:\n  enabled: true\nrouting:\n  predictive_404: true\n"),
		Version: "test",
		IDs:     idgen.NewSequential("req-"),
		Modules: []registry.Candidate{func() (any, error) { return &greeter{closed: &closed}, nil }},
	})

	if a.HTTPServer == nil || a.Table == nil {
		t.Fatal("server and table should be initialized")
	}
	if services, routers := a.Registry.Len(); services != 1 || routers != 2 {
		t.Errorf("modules = %d services, %d routers", services, routers)
	}

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp, body := get(t, srv, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"version":"test"`) {
		t.Errorf("health = %d %s", resp.StatusCode, body)
	}
	if id := resp.Header.Get("X-Request-Id"); id != "req-1" {
		t.Errorf("request id = %q, want req-1", id)
	}

	if resp, body := get(t, srv, "/hello/ada"); resp.StatusCode != http.StatusOK || body != "hello" {
		t.Errorf("hello = %d %s", resp.StatusCode, body)
	}
	if resp, _ := get(t, srv, "/missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing = %d", resp.StatusCode)
	}

	resp, body = get(t, srv, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
	for _, name := range []string{"modgate_requests_total", "modgate_route_not_found_total", "modgate_modules_discovered"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}

	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !closed {
		t.Error("router Close not called on shutdown")
	}
}

func TestBootstrap_MetricsDisabled(t *testing.T) {
	a := newApp(t, bootstrap.Options{Config: parseConfig(t, "")})

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("/metrics = %d, want 404 when disabled", w.Code)
	}
}

func TestBootstrap_LifecycleFailureAborts(t *testing.T) {
	_, err := bootstrap.New(context.Background(), bootstrap.Options{
		Config:    parseConfig(t, ""),
		Registry:  prometheus.NewRegistry(),
		LogOutput: io.Discard,
		Modules: []registry.Candidate{func() (any, error) {
			return &greeter{initErr: errors.New("no upstream")}, nil
		}},
	})

	var he *lifecycle.HookError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HookError", err)
	}
	if he.Module != "greeter" || he.Phase != lifecycle.PhaseInitialization {
		t.Errorf("hook error = %+v", he)
	}
}

func TestBootstrap_BadCandidatesDoNotAbort(t *testing.T) {
	a := newApp(t, bootstrap.Options{
		Config: parseConfig(t, ""),
		Modules: []registry.Candidate{
			func() (any, error) { return nil, errors.New("broken import") },
			func() (any, error) { panic("init panic") },
			func() (any, error) { return "not a module", nil },
		},
	})

	if services, routers := a.Registry.Len(); services != 1 || routers != 1 {
		t.Errorf("modules = %d services, %d routers", services, routers)
	}
}

func TestBootstrap_ConfigReload(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "modgate.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := newApp(t, bootstrap.Options{ConfigPath: path})

	if a.Config.Path() == "" {
		t.Fatal("config file should be watched through a file holder")
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("level = %s, want warn", zerolog.GlobalLevel())
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("level = %s, want debug after reload", zerolog.GlobalLevel())
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloads); got != 1 {
		t.Errorf("reloads = %v, want 1", got)
	}

	if err := os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.Config.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
}
