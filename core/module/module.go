// Package module defines application modules: their immutable descriptors,
// the routes routers declare, and the optional lifecycle capabilities the
// orchestrator drives.
package module

import (
	"context"
	"net/http"

	"github.com/artpar/modgate/config"
)

// Kind classifies a module.
type Kind uint8

const (
	KindService Kind = iota + 1
	KindRouter
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindRouter:
		return "router"
	}
	return "unknown"
}

// Module is anything that carries a descriptor. Instances without one are
// ignored by discovery.
type Module interface {
	Descriptor() Descriptor
}

// Injectable receives a private snapshot of the service registry.
type Injectable interface {
	Inject(ctx context.Context, services Services) error
}

// Configurable receives a deep copy of the effective configuration.
type Configurable interface {
	Configure(ctx context.Context, cfg *config.Config) error
}

// Initializer runs once every earlier phase is done.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer is called in reverse order during shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// HandlerResolver lets a router map handler names itself instead of relying
// on exported method lookup. The returned value must have one of the handler
// shapes accepted by the route compiler.
type HandlerResolver interface {
	ResolveHandler(name string) (any, bool)
}

// Middleware is the handler shape for pass-through routes.
type Middleware = func(http.Handler) http.Handler

// Services is a read-only snapshot of services keyed by name.
type Services map[string]Module

// Get returns the named service.
func (s Services) Get(name string) (Module, bool) {
	m, ok := s[name]
	return m, ok
}

// Names returns the service names in no particular order.
func (s Services) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	return names
}

// Lookup returns the named service asserted to T.
func Lookup[T any](s Services, name string) (T, bool) {
	var zero T
	m, ok := s[name]
	if !ok {
		return zero, false
	}
	t, ok := m.(T)
	return t, ok
}
