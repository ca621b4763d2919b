package module

import (
	"net/http"
	"slices"

	"github.com/artpar/modgate/core/validate"
)

// CORSPolicy configures cross-origin headers for a router or a single route.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

func (p *CORSPolicy) clone() *CORSPolicy {
	if p == nil {
		return nil
	}
	c := *p
	c.AllowedOrigins = slices.Clone(p.AllowedOrigins)
	c.AllowedMethods = slices.Clone(p.AllowedMethods)
	c.AllowedHeaders = slices.Clone(p.AllowedHeaders)
	c.ExposedHeaders = slices.Clone(p.ExposedHeaders)
	return &c
}

// Route declares one entry of a router's table.
type Route struct {
	Path string
	// Handler names the router method that serves the route.
	Handler string
	// Method is the HTTP verb. Empty mounts the route for every method and
	// every sub-path, as pass-through middleware.
	Method string
	Rules  []validate.Rule
	CORS   *CORSPolicy
}

// Descriptor is the immutable metadata of a module. Build one with
// NewService or NewRouter.
type Descriptor struct {
	name     string
	kind     Kind
	priority int
	routes   []Route
	cors     *CORSPolicy
}

// Name is the registry key.
func (d Descriptor) Name() string { return d.name }

// Kind reports whether the module is a service or a router.
func (d Descriptor) Kind() Kind { return d.kind }

// Priority orders routers in the table, highest first.
func (d Descriptor) Priority() int { return d.priority }

// CORS returns a copy of the router-level policy, or nil.
func (d Descriptor) CORS() *CORSPolicy { return d.cors.clone() }

// IsZero reports whether d was never built.
func (d Descriptor) IsZero() bool { return d.name == "" && d.kind == 0 }

// RouteCount is the number of declared routes, valid or not.
func (d Descriptor) RouteCount() int { return len(d.routes) }

// Routes returns a copy of the declared routes.
func (d Descriptor) Routes() []Route {
	out := make([]Route, len(d.routes))
	for i, r := range d.routes {
		r.Rules = slices.Clone(r.Rules)
		r.CORS = r.CORS.clone()
		out[i] = r
	}
	return out
}

// ServiceBuilder builds a service descriptor.
type ServiceBuilder struct {
	d Descriptor
}

// NewService starts a service descriptor.
func NewService(name string) *ServiceBuilder {
	return &ServiceBuilder{d: Descriptor{name: name, kind: KindService}}
}

// Build returns the descriptor.
func (b *ServiceBuilder) Build() Descriptor {
	return b.d
}

// RouterBuilder builds a router descriptor.
type RouterBuilder struct {
	d Descriptor
}

// NewRouter starts a router descriptor with priority 0.
func NewRouter(name string) *RouterBuilder {
	return &RouterBuilder{d: Descriptor{name: name, kind: KindRouter}}
}

// Priority sets the router priority. Higher priorities are mounted first.
func (b *RouterBuilder) Priority(p int) *RouterBuilder {
	b.d.priority = p
	return b
}

// CORS sets the router-level policy.
func (b *RouterBuilder) CORS(p CORSPolicy) *RouterBuilder {
	b.d.cors = p.clone()
	return b
}

// Route appends a route as declared.
func (b *RouterBuilder) Route(r Route) *RouterBuilder {
	r.Rules = slices.Clone(r.Rules)
	r.CORS = r.CORS.clone()
	b.d.routes = append(b.d.routes, r)
	return b
}

func (b *RouterBuilder) method(m, path, handler string, rules []validate.Rule) *RouterBuilder {
	return b.Route(Route{Path: path, Handler: handler, Method: m, Rules: rules})
}

// Get adds a GET route.
func (b *RouterBuilder) Get(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method(http.MethodGet, path, handler, rules)
}

// Post adds a POST route.
func (b *RouterBuilder) Post(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method(http.MethodPost, path, handler, rules)
}

// Put adds a PUT route.
func (b *RouterBuilder) Put(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method(http.MethodPut, path, handler, rules)
}

// Patch adds a PATCH route.
func (b *RouterBuilder) Patch(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method(http.MethodPatch, path, handler, rules)
}

// Delete adds a DELETE route.
func (b *RouterBuilder) Delete(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method(http.MethodDelete, path, handler, rules)
}

// Use mounts handler for every method under path.
func (b *RouterBuilder) Use(path, handler string, rules ...validate.Rule) *RouterBuilder {
	return b.method("", path, handler, rules)
}

// Build returns the descriptor. Later builder calls do not affect it.
func (b *RouterBuilder) Build() Descriptor {
	d := b.d
	d.routes = slices.Clone(b.d.routes)
	d.cors = b.d.cors.clone()
	return d
}
