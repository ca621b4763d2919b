package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/events"
	"github.com/artpar/modgate/core/lifecycle"
	"github.com/artpar/modgate/core/module"
	"github.com/artpar/modgate/core/registry"
	"github.com/rs/zerolog"
)

// recorder collects bus events and hook calls in one timeline.
type recorder struct {
	log []string
}

func (r *recorder) add(s string) { r.log = append(r.log, s) }

type hooked struct {
	desc     module.Descriptor
	rec      *recorder
	failOn   lifecycle.Phase
	services module.Services
	cfg      *config.Config
	closeErr error
}

func (h *hooked) Descriptor() module.Descriptor { return h.desc }

func (h *hooked) hook(phase lifecycle.Phase) error {
	h.rec.add("hook " + h.desc.Name() + " " + string(phase))
	if h.failOn == phase {
		return errors.New("boom")
	}
	return nil
}

func (h *hooked) Inject(ctx context.Context, s module.Services) error {
	h.services = s
	return h.hook(lifecycle.PhaseInjection)
}

func (h *hooked) Configure(ctx context.Context, cfg *config.Config) error {
	h.cfg = cfg
	return h.hook(lifecycle.PhaseConfiguration)
}

func (h *hooked) Init(ctx context.Context) error {
	return h.hook(lifecycle.PhaseInitialization)
}

func (h *hooked) Close(ctx context.Context) error {
	h.rec.add("close " + h.desc.Name())
	return h.closeErr
}

// plain has no hooks at all.
type plain struct{ desc module.Descriptor }

func (p plain) Descriptor() module.Descriptor { return p.desc }

type fakeMetrics struct {
	phases   []string
	failures []string
}

func (f *fakeMetrics) PhaseObserved(kind, phase string, d time.Duration) {
	f.phases = append(f.phases, kind+":"+phase)
}

func (f *fakeMetrics) LifecycleFailed(kind, phase string) {
	f.failures = append(f.failures, kind+":"+phase)
}

func setup(t *testing.T, rec *recorder, mods ...module.Module) (*registry.Registry, *events.Bus) {
	t.Helper()
	reg := registry.New(zerolog.Nop())
	for _, m := range mods {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	bus := events.NewBus(zerolog.Nop())
	bus.Subscribe("*", func(ctx context.Context, e events.Event) error {
		rec.add(e.Name)
		return nil
	})
	return reg, bus
}

func TestRun_Ordering(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec}
	b := &hooked{desc: module.NewService("B").Build(), rec: rec}
	r := &hooked{desc: module.NewRouter("R").Build(), rec: rec}
	reg, bus := setup(t, rec, r, a, b)

	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Logger: zerolog.Nop()})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var want []string
	for _, step := range []struct{ kind, name string }{
		{"service", "A"}, {"service", "B"}, {"router", "R"},
	} {
		for _, phase := range lifecycle.Phases {
			p := string(phase)
			want = append(want,
				step.kind+":"+p+":before",
				step.name+"-"+step.kind+":"+p+":before",
				"hook "+step.name+" "+p,
				step.name+"-"+step.kind+":"+p+":after",
				step.kind+":"+p+":after",
			)
		}
	}

	if strings.Join(rec.log, "\n") != strings.Join(want, "\n") {
		t.Errorf("timeline mismatch\ngot:\n  %s\nwant:\n  %s",
			strings.Join(rec.log, "\n  "), strings.Join(want, "\n  "))
	}
}

func TestRun_HookErrorAborts(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec, failOn: lifecycle.PhaseConfiguration}
	b := &hooked{desc: module.NewService("B").Build(), rec: rec}
	r := &hooked{desc: module.NewRouter("R").Build(), rec: rec}
	reg, bus := setup(t, rec, a, b, r)
	m := &fakeMetrics{}

	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Logger: zerolog.Nop(), Metrics: m})
	err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != `service "A" configuration: boom` {
		t.Errorf("error = %q", err.Error())
	}

	var he *lifecycle.HookError
	if !errors.As(err, &he) || he.Module != "A" || he.Phase != lifecycle.PhaseConfiguration {
		t.Errorf("HookError = %+v", he)
	}

	for _, line := range rec.log {
		if strings.Contains(line, "router") || strings.Contains(line, "B") || strings.Contains(line, "initialization") {
			t.Errorf("unexpected step after failure: %s", line)
		}
		if line == "A-service:configuration:after" || line == "service:configuration:after" {
			t.Errorf("after event emitted for failed phase: %s", line)
		}
	}

	if len(m.failures) != 1 || m.failures[0] != "service:configuration" {
		t.Errorf("failures = %v", m.failures)
	}
	if len(m.phases) != 1 || m.phases[0] != "service:injection" {
		t.Errorf("phases = %v", m.phases)
	}
}

func TestRun_RouterFailure(t *testing.T) {
	rec := &recorder{}
	r := &hooked{desc: module.NewRouter("R").Build(), rec: rec, failOn: lifecycle.PhaseInitialization}
	reg, bus := setup(t, rec, r)

	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Logger: zerolog.Nop()})
	err := o.Run(context.Background())
	if err == nil || err.Error() != `router "R" initialization: boom` {
		t.Errorf("error = %v", err)
	}
}

func TestRun_InjectionSnapshotIsPrivate(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec}
	b := &hooked{desc: module.NewService("B").Build(), rec: rec}
	reg, bus := setup(t, rec, a, b)

	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Logger: zerolog.Nop()})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.services) != 2 || a.services["B"] != module.Module(b) {
		t.Fatalf("A saw services %v", a.services.Names())
	}
	delete(a.services, "B")
	if _, ok := b.services["B"]; !ok {
		t.Error("each module must get its own snapshot")
	}
	if _, ok := reg.Service("B"); !ok {
		t.Error("registry changed through a snapshot")
	}
}

func TestRun_ConfigIsCopied(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec}
	b := &hooked{desc: module.NewService("B").Build(), rec: rec}
	reg, bus := setup(t, rec, a, b)

	cfg := &config.Config{App: map[string]any{"key": "value"}}
	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Config: cfg, Logger: zerolog.Nop()})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	a.cfg.App["key"] = "mutated"
	if b.cfg.App["key"] != "value" || cfg.App["key"] != "value" {
		t.Error("configuration must be deep-copied per module")
	}
}

func TestRun_ModulesWithoutHooks(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	_ = reg.Register(plain{desc: module.NewService("s").Build()})
	_ = reg.Register(plain{desc: module.NewRouter("r").Build()})

	o := lifecycle.New(reg, lifecycle.Options{Logger: zerolog.Nop()})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec}
	reg, bus := setup(t, rec, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := lifecycle.New(reg, lifecycle.Options{Bus: bus, Logger: zerolog.Nop()})
	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestShutdown_ReverseOrder(t *testing.T) {
	rec := &recorder{}
	a := &hooked{desc: module.NewService("A").Build(), rec: rec}
	b := &hooked{desc: module.NewService("B").Build(), rec: rec, closeErr: errors.New("flush failed")}
	r1 := &hooked{desc: module.NewRouter("R1").Build(), rec: rec}
	r2 := &hooked{desc: module.NewRouter("R2").Build(), rec: rec}
	reg, _ := setup(t, rec, a, b, r1, r2, plain{desc: module.NewService("C").Build()})

	o := lifecycle.New(reg, lifecycle.Options{Logger: zerolog.Nop()})
	err := o.Shutdown(context.Background())

	want := "close R2\nclose R1\nclose B\nclose A"
	if got := strings.Join(rec.log, "\n"); got != want {
		t.Errorf("close order:\n%s\nwant:\n%s", got, want)
	}
	if err == nil || !strings.Contains(err.Error(), `service "B" close: flush failed`) {
		t.Errorf("Shutdown error = %v", err)
	}
}
