// Package registry discovers application modules and keeps them in two
// name-keyed registries, one for services and one for routers. Insertion
// order is preserved so lifecycle phases and equal-priority routers run in
// discovery order.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/modgate/core/module"
	"github.com/rs/zerolog"
)

var (
	// ErrNoDescriptor is returned by Register for modules whose descriptor
	// has no name.
	ErrNoDescriptor = errors.New("module has no descriptor name")
	// ErrUnknownKind is returned by Register for descriptors that are
	// neither services nor routers.
	ErrUnknownKind = errors.New("module kind is neither service nor router")
)

// Candidate produces one module instance. Discovery calls each candidate
// once; errors and panics disqualify only that candidate.
type Candidate func() (any, error)

// Metrics receives discovery counters. *metrics.Collector implements it.
type Metrics interface {
	DiscoveryFailed(reason string)
	ModulesDiscovered(kind string, n int)
}

// Registry holds discovered services and routers.
type Registry struct {
	mu sync.RWMutex

	services *orderedModules
	routers  *orderedModules

	logger  zerolog.Logger
	metrics Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics reports discovery counters to m.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry.
func New(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		services: newOrderedModules(),
		routers:  newOrderedModules(),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover instantiates every candidate and registers the ones that are
// modules. A failing candidate is logged and skipped; Discover itself never
// fails on account of a candidate.
func (r *Registry) Discover(ctx context.Context, candidates []Candidate) {
	for i, c := range candidates {
		if ctx.Err() != nil {
			r.logger.Warn().Err(ctx.Err()).Int("remaining", len(candidates)-i).Msg("discovery cancelled")
			return
		}

		inst, err := instantiate(c)
		if err != nil {
			r.logger.Warn().Err(err).Int("candidate", i).Msg("module candidate failed to load, skipping")
			r.countFailure("load")
			continue
		}

		m, ok := inst.(module.Module)
		if !ok {
			r.logger.Debug().Int("candidate", i).Str("type", fmt.Sprintf("%T", inst)).Msg("candidate is not a module, skipping")
			continue
		}

		if err := r.Register(m); err != nil {
			r.logger.Warn().Err(err).Int("candidate", i).Msg("module rejected")
			r.countFailure("descriptor")
		}
	}

	if r.metrics != nil {
		r.mu.RLock()
		s, rt := r.services.len(), r.routers.len()
		r.mu.RUnlock()
		r.metrics.ModulesDiscovered(module.KindService.String(), s)
		r.metrics.ModulesDiscovered(module.KindRouter.String(), rt)
	}
}

func instantiate(c Candidate) (inst any, err error) {
	if c == nil {
		return nil, errors.New("nil candidate")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("candidate panicked: %v", p)
		}
	}()
	return c()
}

// describe reads the descriptor, turning a panic (a typed-nil module, for
// one) into an error.
func describe(m module.Module) (d module.Descriptor, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: descriptor panicked: %v", ErrNoDescriptor, p)
		}
	}()
	return m.Descriptor(), nil
}

func (r *Registry) countFailure(reason string) {
	if r.metrics != nil {
		r.metrics.DiscoveryFailed(reason)
	}
}

// Register adds a module under its descriptor name. A module with the same
// name and kind replaces the earlier one but keeps its position.
func (r *Registry) Register(m module.Module) error {
	if m == nil {
		return ErrNoDescriptor
	}
	d, err := describe(m)
	if err != nil {
		return err
	}
	if d.Name() == "" {
		return ErrNoDescriptor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var target *orderedModules
	switch d.Kind() {
	case module.KindService:
		target = r.services
	case module.KindRouter:
		target = r.routers
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Name())
	}

	if target.set(d.Name(), m) {
		r.logger.Warn().
			Str("module", d.Name()).
			Str("kind", d.Kind().String()).
			Msg("module name registered twice, keeping the later instance")
	} else {
		r.logger.Debug().
			Str("module", d.Name()).
			Str("kind", d.Kind().String()).
			Int("priority", d.Priority()).
			Msg("module registered")
	}
	return nil
}

// Service returns a registered service by name.
func (r *Registry) Service(name string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services.get(name)
}

// Router returns a registered router by name.
func (r *Registry) Router(name string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routers.get(name)
}

// Services returns all services in insertion order.
func (r *Registry) Services() []module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services.values()
}

// Routers returns all routers in insertion order.
func (r *Registry) Routers() []module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routers.values()
}

// ServiceSnapshot returns a private copy of the service registry, as handed
// to injection hooks. Mutating it does not affect the registry.
func (r *Registry) ServiceSnapshot() module.Services {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(module.Services, r.services.len())
	for _, name := range r.services.keys {
		snap[name] = r.services.byName[name]
	}
	return snap
}

// SortedRouters returns routers by descending priority. Routers with equal
// priority keep their insertion order.
func (r *Registry) SortedRouters() []module.Module {
	routers := r.Routers()
	sort.SliceStable(routers, func(i, j int) bool {
		return routers[i].Descriptor().Priority() > routers[j].Descriptor().Priority()
	})
	return routers
}

// Len returns the number of services and routers.
func (r *Registry) Len() (services, routers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services.len(), r.routers.len()
}

// orderedModules is a name-keyed map that remembers first insertion order.
type orderedModules struct {
	keys   []string
	byName map[string]module.Module
}

func newOrderedModules() *orderedModules {
	return &orderedModules{byName: make(map[string]module.Module)}
}

// set stores m and reports whether name was already present.
func (o *orderedModules) set(name string, m module.Module) bool {
	_, exists := o.byName[name]
	if !exists {
		o.keys = append(o.keys, name)
	}
	o.byName[name] = m
	return exists
}

func (o *orderedModules) get(name string) (module.Module, bool) {
	m, ok := o.byName[name]
	return m, ok
}

func (o *orderedModules) values() []module.Module {
	out := make([]module.Module, len(o.keys))
	for i, k := range o.keys {
		out[i] = o.byName[k]
	}
	return out
}

func (o *orderedModules) len() int {
	return len(o.keys)
}
