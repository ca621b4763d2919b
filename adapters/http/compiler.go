package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/adapters/metrics"
	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/module"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ErrNotRouter is returned when Compile is handed a module that is not a
// router.
var ErrNotRouter = errors.New("module is not a router")

// CompileOptions configures Compile.
type CompileOptions struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector
	Clock   clock.Clock

	// Routing controls the predictive 404 guard.
	Routing config.RoutingConfig
	// CORS supplies the open default policy.
	CORS config.CORSConfig
	// MaxBodyBytes limits parsed request bodies; zero means no limit.
	MaxBodyBytes int64
}

// skipError explains why a declared route was not compiled.
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string { return e.err.Error() }

func skip(reason, format string, args ...any) *skipError {
	return &skipError{reason: reason, err: fmt.Errorf(format, args...)}
}

// Compile builds the route table for routers. Routers are ordered by
// descending priority, keeping the given order for ties. Routes that cannot
// be compiled are logged and dropped without affecting their siblings.
func Compile(routers []module.Module, opts CompileOptions) (*Table, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger := opts.Logger.With().Str("component", "routes").Logger()

	sorted := slices.Clone(routers)
	for _, rt := range sorted {
		if rt == nil {
			return nil, fmt.Errorf("%w: nil module", ErrNotRouter)
		}
		if d := rt.Descriptor(); d.Kind() != module.KindRouter {
			return nil, fmt.Errorf("%w: %q is a %s", ErrNotRouter, d.Name(), d.Kind())
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Descriptor().Priority() > sorted[j].Descriptor().Priority()
	})

	t := &Table{logger: logger, metrics: opts.Metrics}
	t.add(&layer{
		Layer:   Layer{Kind: LayerBodyParser, Middleware: []string{"json"}},
		handler: bodyParser(opts.MaxBodyBytes),
	})

	predictive := opts.Routing.Predictive404
	threshold := opts.Routing.Threshold()
	granular := predictive && !math.IsInf(threshold, 1)
	guarded := false

	for _, rt := range sorted {
		d := rt.Descriptor()

		if granular && !guarded && threshold > float64(d.Priority()) {
			t.add(t.guardLayer())
			guarded = true
		}

		for _, route := range d.Routes() {
			l, err := compileRoute(rt, d, route, opts, logger)
			if err != nil {
				var se *skipError
				reason := "invalid"
				if errors.As(err, &se) {
					reason = se.reason
				}
				logger.Warn().
					Err(err).
					Str("router", d.Name()).
					Str("method", route.Method).
					Str("path", route.Path).
					Str("handler", route.Handler).
					Msg("route skipped")
				if opts.Metrics != nil {
					opts.Metrics.RouteSkipped(d.Name(), reason)
				}
				continue
			}
			t.add(l)
		}
	}

	switch {
	case predictive && !guarded:
		t.add(t.guardLayer())
	case !predictive:
		t.add(&layer{Layer: Layer{Kind: LayerNotFound}, handler: t.staticNotFound()})
	}
	t.add(&layer{Layer: Layer{Kind: LayerError}, handler: t.errorLayer()})

	logger.Info().
		Int("routers", len(sorted)).
		Int("routes", len(t.terminal)).
		Int("layers", len(t.layers)).
		Msg("route table compiled")
	return t, nil
}

func (t *Table) add(l *layer) {
	t.layers = append(t.layers, l)
	if l.terminal {
		t.terminal = append(t.terminal, l)
	}
}

func (t *Table) guardLayer() *layer {
	return &layer{Layer: Layer{Kind: LayerGuard}, handler: t.predictiveGuard()}
}

func compileRoute(rt module.Module, d module.Descriptor, route module.Route, opts CompileOptions, logger zerolog.Logger) (l *layer, err error) {
	if route.Path == "" {
		return nil, skip("missing_path", "route has no path")
	}
	if !strings.HasPrefix(route.Path, "/") {
		return nil, skip("invalid_path", "path %q must start with '/'", route.Path)
	}
	if route.Handler == "" {
		return nil, skip("missing_handler", "route has no handler")
	}

	fn, ok := resolveHandler(rt, route.Handler)
	if !ok {
		return nil, skip("handler_not_found", "handler %q not found on router %q", route.Handler, d.Name())
	}
	h, isMiddleware, ok := adaptHandler(fn)
	if !ok {
		return nil, skip("unsupported_handler", "handler %q has unsupported type %T", route.Handler, fn)
	}

	method := strings.ToUpper(route.Method)
	logMW := requestLogger(logger, opts.Metrics, opts.Clock, d.Name(), route.Path, route.Handler)
	corsMW := corsMiddleware(resolvePolicy(route.CORS, d.CORS(), opts.CORS))

	mws := []func(http.Handler) http.Handler{logMW}
	names := []string{"logger"}
	if len(route.Rules) > 0 {
		mws = append(mws, validation(logger, opts.Metrics, d.Name(), route.Rules))
		names = append(names, "validate")
	}
	mws = append(mws, corsMW)
	names = append(names, "cors")

	mux := chi.NewMux()
	mux.NotFound(Next)
	mux.MethodNotAllowed(Next)

	// chi panics on malformed patterns and unknown methods.
	defer func() {
		if p := recover(); p != nil {
			l = nil
			err = skip("invalid_pattern", "cannot mount %s %q: %v", method, route.Path, p)
		}
	}()

	matchMethod := method
	if method == "" {
		served := chain(h, mws...)
		for _, pattern := range mountPatterns(route.Path) {
			mux.Handle(pattern, served)
		}
		matchMethod = http.MethodGet
	} else {
		mux.Method(method, route.Path, chain(h, mws...))
		if method != http.MethodOptions {
			// Preflight requests for the route get the same CORS policy.
			mux.Method(http.MethodOptions, route.Path, chain(http.HandlerFunc(Next), logMW, corsMW))
		}
	}

	return &layer{
		Layer: Layer{
			Kind:       LayerRoute,
			Router:     d.Name(),
			Priority:   d.Priority(),
			Method:     method,
			Path:       route.Path,
			Handler:    route.Handler,
			Middleware: names,
		},
		mux:         mux,
		matchMethod: matchMethod,
		terminal:    method != "" || !isMiddleware,
	}, nil
}

// mountPatterns returns the chi patterns for a method-less route: the path
// itself and everything below it.
func mountPatterns(path string) []string {
	if strings.HasSuffix(path, "/*") {
		return []string{path}
	}
	sub := strings.TrimSuffix(path, "/") + "/*"
	if sub == path {
		return []string{path}
	}
	return []string{path, sub}
}

// resolveHandler finds the named handler on a router, asking the router
// first and falling back to its exported methods.
func resolveHandler(rt module.Module, name string) (any, bool) {
	if hr, ok := rt.(module.HandlerResolver); ok {
		if h, ok := hr.ResolveHandler(name); ok && h != nil {
			return h, true
		}
	}
	m := reflect.ValueOf(rt).MethodByName(name)
	if !m.IsValid() {
		return nil, false
	}
	return m.Interface(), true
}

// adaptHandler converts the accepted handler shapes to an http.Handler.
// Middleware receives Next as its inner handler.
func adaptHandler(fn any) (h http.Handler, isMiddleware bool, ok bool) {
	switch f := fn.(type) {
	case http.Handler:
		return f, false, true
	case func(http.ResponseWriter, *http.Request):
		return http.HandlerFunc(f), false, true
	case func(http.ResponseWriter, *http.Request) error:
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := f(w, r); err != nil {
				Fail(w, r, err)
			}
		}), false, true
	case func(http.Handler) http.Handler:
		return f(http.HandlerFunc(Next)), true, true
	}
	return nil, false, false
}
