package http

import (
	"context"
	"net/http"
	"time"

	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/adapters/http/request"
	"github.com/artpar/modgate/adapters/idgen"
	"github.com/artpar/modgate/adapters/metrics"
	"github.com/artpar/modgate/core/validate"
	"github.com/artpar/modgate/pkg/apierr"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request a UUID, reusing an incoming X-Request-Id.
// The id is stored where chi's middleware.GetReqID finds it.
func RequestID(next http.Handler) http.Handler {
	return RequestIDWith(idgen.UUID{})(next)
}

// RequestIDWith is RequestID with a custom id source.
func RequestIDWith(gen idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = gen.New()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bodyParser parses the body once for every later layer.
func bodyParser(limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, raw, err := request.Parse(r, limit)
		if err != nil {
			Fail(w, r, err)
			return
		}
		Next(w, r.WithContext(request.WithBody(r.Context(), value, raw)))
	})
}

// predictiveGuard answers 404 as soon as no route in the table can match the
// path. The table is complete before the first request, so the guard sees
// routes compiled after it too.
func (t *Table) predictiveGuard() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.Matches(routePath(r)) {
			Next(w, r)
			return
		}
		t.notFound(w, r, "predictive")
	})
}

// staticNotFound answers 404 for whatever reaches it.
func (t *Table) staticNotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.notFound(w, r, "static")
	})
}

// errorLayer is the last layer. Reached without an error it behaves like
// falling off the table.
func (t *Table) errorLayer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := stepFrom(r)
		t.handleError(w, r, s.top, nil, false)
	})
}

// requestLogger logs one line per request served through a route layer and
// records request metrics against the declared pattern.
func requestLogger(logger zerolog.Logger, m *metrics.Collector, clk clock.Clock, router, pattern, handler string) func(http.Handler) http.Handler {
	observe := func(r *http.Request, ww middleware.WrapResponseWriter, status int, d time.Duration) {
		if m != nil {
			m.ObserveRequest(router, r.Method, pattern, status, d)
		}

		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("router", router).
			Str("handler", handler).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", d).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := clk.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// A panicking handler is still observed; the panic unwinds on to
			// the table, which answers 500.
			completed := false
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
					if !completed {
						status = http.StatusInternalServerError
					}
				}
				observe(r, ww, status, clock.Since(clk, start))
			}()

			next.ServeHTTP(ww, r)
			completed = true
		})
	}
}

// validation rejects requests that fail the route's rules. A rejection is a
// 400; a broken rule or panicking validator is a 500. Both carry
// VALIDATION_FAILED and are answered here rather than by the error handler.
func validation(logger zerolog.Logger, m *metrics.Collector, router string, rules []validate.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := validate.NewRequest(r, request.Body(r), request.RawJSON(r))

			rej, err := validate.Evaluate(r.Context(), rules, req)
			if err != nil {
				logger.Error().
					Err(err).
					Str("router", router).
					Str("path", r.URL.Path).
					Msg("validation failed to run")
				apierr.New(http.StatusInternalServerError, apierr.CodeValidationFailed, err.Error()).WithCause(err).Write(w)
				return
			}
			if rej != nil {
				if m != nil {
					m.ValidationFailed(router, rej.Kind.String())
				}
				logger.Debug().
					Str("router", router).
					Str("path", r.URL.Path).
					Str("kind", rej.Kind.String()).
					Str("field", rej.Path).
					Msg(rej.Message)
				apierr.ValidationFailed(rej.Message).Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routePath is the path chi matches against.
func routePath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// chain applies middlewares so the first one is outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
