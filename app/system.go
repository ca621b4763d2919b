package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/modgate/adapters/http/request"
	"github.com/artpar/modgate/core/module"
	"github.com/artpar/modgate/core/validate"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// SystemRouterName is the registry name of the system router.
const SystemRouterName = "system"

// SystemPriority mounts the system routes ahead of application routers.
const SystemPriority = 100

// TimeSource is what the system router needs from the clock service.
type TimeSource interface {
	Now() time.Time
	Location() *time.Location
}

// ErrNoClock is returned by Inject when the clock service is not registered.
var ErrNoClock = errors.New("system router requires the clock service")

// SystemRouter serves health, time and echo endpoints.
type SystemRouter struct {
	desc    module.Descriptor
	logger  zerolog.Logger
	version string

	clock   TimeSource
	started time.Time
}

// NewSystemRouter creates the system router.
func NewSystemRouter(version string, logger zerolog.Logger) *SystemRouter {
	if version == "" {
		version = "dev"
	}
	desc := module.NewRouter(SystemRouterName).
		Priority(SystemPriority).
		Get("/health", "Health").
		Get("/time", "Time", validate.Query(
			validate.Key("format", validate.Opt(validate.Enum("rfc3339", "unix"))),
		)).
		Post("/echo", "Echo", validate.Body(
			validate.Key("message", validate.And(validate.String(), validate.LenRange(1, 1024))),
			validate.Object("options",
				validate.Key("repeat", validate.Opt(validate.And(validate.Number(), validate.NumRange(1, 10)))),
				validate.Key("uppercase", validate.Opt(validate.Boolean())),
			),
			validate.Key("confirm", validate.Opt(validate.EqualRef("message"))),
		)).
		Build()

	return &SystemRouter{desc: desc, logger: logger, version: version}
}

func (s *SystemRouter) Descriptor() module.Descriptor { return s.desc }

// Inject resolves the clock service.
func (s *SystemRouter) Inject(_ context.Context, services module.Services) error {
	c, ok := module.Lookup[TimeSource](services, ClockServiceName)
	if !ok {
		return ErrNoClock
	}
	s.clock = c
	return nil
}

// Init records the start time reported by /health.
func (s *SystemRouter) Init(_ context.Context) error {
	s.started = s.clock.Now()
	return nil
}

// Health reports liveness.
func (s *SystemRouter) Health(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"time":           now.Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(s.started).Seconds()),
	})
}

// Time reports the current time as RFC 3339 (default) or Unix seconds.
func (s *SystemRouter) Time(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	resp := map[string]any{"timezone": s.clock.Location().String()}
	if r.URL.Query().Get("format") == "unix" {
		resp["time"] = now.Unix()
	} else {
		resp["time"] = now.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type echoRequest struct {
	Message string `json:"message"`
	Options struct {
		Repeat    float64 `json:"repeat"`
		Uppercase bool    `json:"uppercase"`
	} `json:"options"`
}

// Echo returns the message, optionally repeated and upper-cased.
func (s *SystemRouter) Echo(w http.ResponseWriter, r *http.Request) error {
	var in echoRequest
	if err := request.Decode(r, &in); err != nil {
		return err
	}

	msg := in.Message
	if in.Options.Uppercase {
		msg = strings.ToUpper(msg)
	}
	if n := int(in.Options.Repeat); n > 1 {
		msg = strings.Repeat(msg, n)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    msg,
		"request_id": middleware.GetReqID(r.Context()),
	})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
