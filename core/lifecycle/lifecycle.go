// Package lifecycle drives registered modules through injection,
// configuration and initialization, announcing each phase on the event bus.
//
// Each module runs all of its phases before the next module starts, and all
// services finish before any router starts. Modules run in registry insertion
// order. The first hook error stops the whole run.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/module"
	"github.com/artpar/modgate/core/registry"
	"github.com/rs/zerolog"
)

// Phase names a lifecycle stage.
type Phase string

const (
	PhaseInjection      Phase = "injection"
	PhaseConfiguration  Phase = "configuration"
	PhaseInitialization Phase = "initialization"
)

// Phases lists the stages in execution order.
var Phases = []Phase{PhaseInjection, PhaseConfiguration, PhaseInitialization}

// Emitter publishes lifecycle notifications. *events.Bus implements it.
type Emitter interface {
	EmitOnce(ctx context.Context, name string, args ...any)
}

// Metrics receives phase timings and failures. *metrics.Collector implements it.
type Metrics interface {
	PhaseObserved(kind, phase string, d time.Duration)
	LifecycleFailed(kind, phase string)
}

// HookError reports which hook failed.
type HookError struct {
	Kind   module.Kind
	Module string
	Phase  Phase
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s %q %s: %v", e.Kind, e.Module, e.Phase, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Options configures an Orchestrator.
type Options struct {
	Bus     Emitter
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics Metrics
	Clock   clock.Clock
}

// Orchestrator runs lifecycle hooks for one registry.
type Orchestrator struct {
	registry *registry.Registry
	bus      Emitter
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  Metrics
	clock    clock.Clock
}

// New creates an orchestrator. A nil bus drops notifications.
func New(reg *registry.Registry, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		bus:      opts.Bus,
		cfg:      opts.Config,
		logger:   opts.Logger.With().Str("component", "lifecycle").Logger(),
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}
	if o.bus == nil {
		o.bus = nopEmitter{}
	}
	if o.cfg == nil {
		o.cfg = &config.Config{}
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	return o
}

// Run executes every phase for services, then for routers.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.runKind(ctx, module.KindService, o.registry.Services()); err != nil {
		return err
	}
	return o.runKind(ctx, module.KindRouter, o.registry.Routers())
}

func (o *Orchestrator) runKind(ctx context.Context, kind module.Kind, mods []module.Module) error {
	for _, m := range mods {
		for _, phase := range Phases {
			start := o.clock.Now()
			if err := o.runPhase(ctx, kind, phase, m); err != nil {
				o.report(err)
				return err
			}
			if o.metrics != nil {
				o.metrics.PhaseObserved(kind.String(), string(phase), clock.Since(o.clock, start))
			}
		}
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, kind module.Kind, phase Phase, m module.Module) error {
	name := m.Descriptor().Name()
	global := fmt.Sprintf("%s:%s", kind, phase)
	scoped := fmt.Sprintf("%s-%s:%s", name, kind, phase)

	o.bus.EmitOnce(ctx, global+":before", name)
	o.bus.EmitOnce(ctx, scoped+":before", name)

	if err := ctx.Err(); err != nil {
		return &HookError{Kind: kind, Module: name, Phase: phase, Err: err}
	}
	if err := o.callHook(ctx, phase, m); err != nil {
		return &HookError{Kind: kind, Module: name, Phase: phase, Err: err}
	}

	o.bus.EmitOnce(ctx, scoped+":after", name)
	o.bus.EmitOnce(ctx, global+":after", name)
	return nil
}

func (o *Orchestrator) callHook(ctx context.Context, phase Phase, m module.Module) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panicked: %v", p)
		}
	}()

	switch phase {
	case PhaseInjection:
		if h, ok := m.(module.Injectable); ok {
			return h.Inject(ctx, o.registry.ServiceSnapshot())
		}
	case PhaseConfiguration:
		if h, ok := m.(module.Configurable); ok {
			return h.Configure(ctx, o.cfg.Clone())
		}
	case PhaseInitialization:
		if h, ok := m.(module.Initializer); ok {
			return h.Init(ctx)
		}
	}
	return nil
}

func (o *Orchestrator) report(err error) {
	var he *HookError
	if !errors.As(err, &he) {
		o.logger.Error().Err(err).Msg("lifecycle failed")
		return
	}
	o.logger.Error().
		Err(he.Err).
		Str("kind", he.Kind.String()).
		Str("module", he.Module).
		Str("phase", string(he.Phase)).
		Msg("lifecycle hook failed")
	if o.metrics != nil {
		o.metrics.LifecycleFailed(he.Kind.String(), string(he.Phase))
	}
}

// Shutdown closes routers, then services, each in reverse insertion order.
// Every Closer is called even if an earlier one fails.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error
	closeAll := func(kind module.Kind, mods []module.Module) {
		for i := len(mods) - 1; i >= 0; i-- {
			c, ok := mods[i].(module.Closer)
			if !ok {
				continue
			}
			name := mods[i].Descriptor().Name()
			if err := c.Close(ctx); err != nil {
				o.logger.Error().Err(err).Str("kind", kind.String()).Str("module", name).Msg("module close failed")
				errs = append(errs, fmt.Errorf("%s %q close: %w", kind, name, err))
				continue
			}
			o.logger.Debug().Str("kind", kind.String()).Str("module", name).Msg("module closed")
		}
	}
	closeAll(module.KindRouter, o.registry.Routers())
	closeAll(module.KindService, o.registry.Services())
	return errors.Join(errs...)
}

type nopEmitter struct{}

func (nopEmitter) EmitOnce(context.Context, string, ...any) {}
