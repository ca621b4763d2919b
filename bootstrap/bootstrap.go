// Package bootstrap wires all dependencies and starts the application.
// Modules are discovered, taken through their lifecycle and compiled into the
// route table before the HTTP server accepts its first request.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/modgate/adapters/clock"
	apihttp "github.com/artpar/modgate/adapters/http"
	"github.com/artpar/modgate/adapters/idgen"
	"github.com/artpar/modgate/adapters/metrics"
	"github.com/artpar/modgate/app"
	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/events"
	"github.com/artpar/modgate/core/lifecycle"
	"github.com/artpar/modgate/core/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Metrics    *metrics.Collector
	Bus        *events.Bus
	Registry   *registry.Registry
	Lifecycle  *lifecycle.Orchestrator
	Table      *apihttp.Table
	HTTPServer *http.Server

	logs     *logWriter
	gatherer prometheus.Gatherer
	ids      idgen.Generator
	watch    bool
}

// Options configures New. The zero value loads modgate.yaml from the working
// directory, falling back to MODGATE_* environment variables.
type Options struct {
	// ConfigPath is the YAML file to load. Ignored when Config is set.
	ConfigPath string
	// Config is an already loaded configuration.
	Config *config.Config
	// Watch reloads the config file on change and on SIGHUP.
	Watch bool

	// Modules are discovered after the built-in ones.
	Modules []registry.Candidate
	Version string

	Clock clock.Clock
	// IDs generates request ids; nil uses random UUIDs.
	IDs idgen.Generator
	// Registry receives the metrics; nil uses the default registry.
	Registry *prometheus.Registry
	// LogOutput defaults to stdout.
	LogOutput io.Writer
}

// DefaultConfigPath is used when Options.ConfigPath is empty.
const DefaultConfigPath = "modgate.yaml"

const defaultShutdownTimeout = 30 * time.Second

// New creates and initializes the application. Lifecycle errors abort
// startup and are returned as *lifecycle.HookError.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.IDs == nil {
		opts.IDs = idgen.UUID{}
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}

	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadWithFallback(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	logger, logs := setupLogger(cfg.Logging, opts.LogOutput, opts.Clock)
	logger.Info().Str("version", opts.Version).Msg("initializing modgate")

	a := &App{Logger: logger, logs: logs, ids: opts.IDs, watch: opts.Watch}

	if err := a.initConfig(cfg, opts); err != nil {
		return nil, err
	}
	a.initMetrics(opts.Registry)
	a.initBus()

	a.Registry = registry.New(logger, registry.WithMetrics(a.Metrics))
	candidates := append(app.Candidates(opts.Version, opts.Clock, logger), opts.Modules...)
	a.Registry.Discover(ctx, candidates)

	services, routers := a.Registry.Len()
	logger.Info().
		Int("services", services).
		Int("routers", routers).
		Msg("modules discovered")

	a.Lifecycle = lifecycle.New(a.Registry, lifecycle.Options{
		Bus:     a.Bus,
		Config:  a.Config.Get(),
		Logger:  logger,
		Metrics: a.Metrics,
		Clock:   opts.Clock,
	})
	if err := a.Lifecycle.Run(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	current := a.Config.Get()
	table, err := apihttp.Compile(a.Registry.SortedRouters(), apihttp.CompileOptions{
		Logger:       logger,
		Metrics:      a.Metrics,
		Clock:        opts.Clock,
		Routing:      current.Routing,
		CORS:         current.CORS,
		MaxBodyBytes: current.Server.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("compile routes: %w", err)
	}
	a.Table = table

	a.HTTPServer = &http.Server{
		Addr:         current.Server.Addr(),
		Handler:      a.Handler(),
		ReadTimeout:  current.Server.ReadTimeout,
		WriteTimeout: current.Server.WriteTimeout,
	}
	logger.Info().Str("addr", a.HTTPServer.Addr).Msg("http server configured")
	return a, nil
}

func (a *App) initConfig(cfg *config.Config, opts Options) error {
	if opts.Config == nil && fileExists(opts.ConfigPath) {
		h, err := config.NewHolder(opts.ConfigPath, a.Logger)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.Config = h
	} else {
		a.Config = config.NewStaticHolder(cfg, a.Logger)
	}

	a.Config.OnChange(func(c *config.Config) {
		applyLevel(c.Logging.Level)
		a.logs.setFormat(c.Logging.Format)
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(nil)
		}
	})
	a.Config.OnError(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err)
		}
	})
	return nil
}

func (a *App) initMetrics(reg *prometheus.Registry) {
	if reg == nil {
		a.Metrics = metrics.New()
		a.gatherer = prometheus.DefaultGatherer
		return
	}
	a.Metrics = metrics.NewWithRegistry(reg)
	a.gatherer = reg
}

// initBus logs lifecycle notifications at trace level.
func (a *App) initBus() {
	a.Bus = events.NewBus(a.Logger)
	a.Bus.Subscribe("*", func(_ context.Context, e events.Event) error {
		a.Logger.Trace().Str("event", e.Name).Interface("args", e.Args).Msg("lifecycle event")
		return nil
	})
}

// Handler returns the server's root handler: request ids, the metrics
// endpoint when enabled, and the route table for everything else.
func (a *App) Handler() http.Handler {
	cfg := a.Config.Get()

	r := chi.NewRouter()
	r.Use(apihttp.RequestIDWith(a.ids))
	r.Use(middleware.RealIP)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
		a.Logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	r.Handle("/", a.Table)
	r.Handle("/*", a.Table)
	return r
}

// Run starts the server and blocks until SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	if a.watch {
		if a.Config.Path() != "" {
			if err := a.Config.WatchFile(); err != nil {
				a.Logger.Warn().Err(err).Msg("config file watch disabled")
			}
		}
		a.Config.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		_ = a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the server, then closes modules in reverse order.
func (a *App) Shutdown() error {
	timeout := a.Config.Get().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.Config.Stop()

	var errs []error
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, err)
		}
	}
	if a.Lifecycle != nil {
		if err := a.Lifecycle.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
