// Package http compiles router descriptors into an ordered route table and
// serves requests through it.
//
// The table is a flat list of layers tried in order. Route layers own a
// one-route chi mux used for matching and URL parameters; a layer that does
// not match, or a middleware that calls Next, hands the request to the
// following layer. Errors returned by handlers skip straight to the terminal
// error handler.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/artpar/modgate/adapters/metrics"
	"github.com/artpar/modgate/pkg/apierr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// LayerKind classifies a table layer.
type LayerKind string

const (
	LayerBodyParser LayerKind = "body-parser"
	LayerGuard      LayerKind = "predictive-404"
	LayerRoute      LayerKind = "route"
	LayerNotFound   LayerKind = "not-found"
	LayerError      LayerKind = "error-handler"
)

// Layer describes one entry of a compiled table.
type Layer struct {
	Kind     LayerKind `json:"kind"`
	Router   string    `json:"router,omitempty"`
	Priority int       `json:"priority"`
	// Method is empty for layers that run for every method.
	Method     string   `json:"method,omitempty"`
	Path       string   `json:"path,omitempty"`
	Handler    string   `json:"handler,omitempty"`
	Middleware []string `json:"middleware,omitempty"`
}

type layer struct {
	Layer

	// handler serves global layers; mux serves route layers.
	handler http.Handler
	mux     *chi.Mux

	// matchMethod is the method used when the guard probes mux.
	matchMethod string
	// terminal marks route layers that answer requests rather than pass
	// them through. Only these count for the predictive guard.
	terminal bool
}

// Table is a compiled, read-only route table.
type Table struct {
	layers   []*layer
	terminal []*layer
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// Layers describes the table in order.
func (t *Table) Layers() []Layer {
	out := make([]Layer, len(t.layers))
	for i, l := range t.layers {
		out[i] = l.Layer
		out[i].Middleware = append([]string(nil), l.Middleware...)
	}
	return out
}

// Matches reports whether any terminal route layer could serve path, for
// any method.
func (t *Table) Matches(path string) bool {
	for _, l := range t.terminal {
		if l.mux.Match(chi.NewRouteContext(), l.matchMethod, path) {
			return true
		}
	}
	return false
}

type stepKey struct{}

// step is the position of a request in the table.
type step struct {
	table *Table
	index int
	top   middleware.WrapResponseWriter
}

func stepFrom(r *http.Request) *step {
	s, _ := r.Context().Value(stepKey{}).(*step)
	return s
}

// ServeHTTP runs the request through the table from the first layer.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	top := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			t.handleError(top, r, top, apierr.FromPanic(p), true)
		}
	}()
	t.serve(top, r, top, 0)
}

func (t *Table) serve(w http.ResponseWriter, r *http.Request, top middleware.WrapResponseWriter, i int) {
	if i >= len(t.layers) {
		t.handleError(w, r, top, nil, false)
		return
	}
	l := t.layers[i]
	ctx := context.WithValue(r.Context(), stepKey{}, &step{table: t, index: i, top: top})
	if l.mux != nil {
		// Each route layer matches against a fresh chi context so URL
		// parameters never leak between layers.
		ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
		l.mux.ServeHTTP(w, r.WithContext(ctx))
		return
	}
	l.handler.ServeHTTP(w, r.WithContext(ctx))
}

// Next hands the request to the layer after the current one. Middleware
// mounted as a route handler continues the table through it.
func Next(w http.ResponseWriter, r *http.Request) {
	s := stepFrom(r)
	if s == nil {
		http.NotFound(w, r)
		return
	}
	s.table.serve(w, r, s.top, s.index+1)
}

// Fail skips the remaining layers and renders err with the terminal handler.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	s := stepFrom(r)
	if s == nil {
		apierr.Internal(err).Write(w)
		return
	}
	s.table.handleError(w, r, s.top, err, false)
}

// handleError is the terminal error handler. *apierr.Error values keep their
// status and code; anything else, and every panic, becomes a generic 500 and
// is reported. A nil err means the request fell off the end of the table.
func (t *Table) handleError(w http.ResponseWriter, r *http.Request, top middleware.WrapResponseWriter, err error, panicked bool) {
	if err == nil {
		t.notFound(w, r, "fallthrough")
		return
	}

	var out *apierr.Error
	if !panicked && errors.As(err, &out) && out.Status < http.StatusInternalServerError {
		t.logger.Debug().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", out.Status).
			Msg("request failed")
	} else {
		if panicked || !errors.As(err, &out) || out.Code == apierr.CodeUnknown {
			out = apierr.Internal(err)
		}
		t.report(r, err, panicked)
	}

	if top.Status() != 0 || top.BytesWritten() > 0 {
		t.logger.Warn().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("response already started, error not rendered")
		return
	}
	out.Write(w)
}

func (t *Table) report(r *http.Request, err error, panicked bool) {
	if t.metrics != nil {
		t.metrics.Unhandled()
	}
	ev := t.logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context()))
	var ae *apierr.Error
	if panicked && errors.As(err, &ae) && len(ae.Stack) > 0 {
		ev = ev.Bytes("stack", ae.Stack)
	}
	ev.Msg("unhandled request error")
}

func (t *Table) notFound(w http.ResponseWriter, r *http.Request, source string) {
	if t.metrics != nil {
		t.metrics.NotFound(source)
	}
	apierr.RouteNotFound(r.Method, r.URL.Path).Write(w)
}
