// Package flow provides the application bootstrap for the Flow framework.
//
// App wires together a router, a middleware stack, an HTTP server and,
// optionally, a set of named databases. It holds no global state: every
// dependency is passed through options, and each request gets its own
// database pool through DatabaseMiddleware.
//
// The App is responsible for:
//   - holding configuration (address, timeouts, logger)
//   - accepting a router (http.Handler) or using a default ServeMux
//   - registering middleware in a deterministic order
//   - opening a request pool per request when databases are configured
//   - starting and gracefully shutting down the HTTP server
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dministrator/flowdb/pkg/sqldb"
	"github.com/rs/zerolog/log"
)

// Middleware is a function that wraps an http.Handler. Order matters: middleware
// registered earlier will be executed outer-most (first to receive requests).
type Middleware func(http.Handler) http.Handler

// Logger defines the subset of logging functionality Flow expects.
// *zerolog.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...interface{})
}

// App encapsulates the running web application.
// It is safe for concurrent use after construction (except for calling
// Start multiple times).
type App struct {
	Name            string
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	logger Logger

	// router is the underlying http.Handler providing routing logic. If nil,
	// a default http.ServeMux is used.
	router http.Handler

	middleware []Middleware

	// engines are the long-lived database handles; nil when the database
	// extension is not configured.
	engines *sqldb.Engines

	server *http.Server

	// state indicates whether the server is running: 0 = idle, 1 = running,
	// 2 = shutting down/stopped.
	state int32
}

var (
	// ErrAppAlreadyRunning is returned when Start/Run is called on an already-running App.
	ErrAppAlreadyRunning = errors.New("app: already running")
)

// Option is a functional option for configuring an App at construction time.
type Option func(*App)

// WithLogger sets a custom logger. The default is the global zerolog
// logger tagged with the app name.
func WithLogger(l Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithAddr sets the listen address (eg. ":3000").
func WithAddr(addr string) Option {
	return func(a *App) { a.Addr = addr }
}

// WithShutdownTimeout sets the graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.ShutdownTimeout = d }
}

// WithDatabases attaches the database engines and registers
// DatabaseMiddleware, so every request sees its own pool through
// Context.Pool. Nil engines leave the extension disabled.
func WithDatabases(engines *sqldb.Engines) Option {
	return func(a *App) {
		a.engines = engines
		a.Use(DatabaseMiddleware(engines, a.logger))
	}
}

// WithLogging registers the built-in logging middleware using the App's logger.
func WithLogging() Option {
	return func(a *App) { a.Use(LoggingMiddleware(a.logger)) }
}

// WithRequestID registers the request ID middleware. If headerName is empty
// the default header "X-Request-ID" is used.
func WithRequestID(headerName string) Option {
	return func(a *App) { a.Use(RequestIDMiddleware(headerName)) }
}

// WithTimeout registers a per-request timeout middleware. A zero duration
// disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *App) { a.Use(TimeoutMiddleware(d)) }
}

// WithMetrics registers a basic metrics middleware that sets X-Response-Time.
func WithMetrics() Option {
	return func(a *App) { a.Use(MetricsMiddleware()) }
}

// WithDefaultMiddleware registers Recovery, RequestID, Logging and Metrics.
func WithDefaultMiddleware() Option {
	return func(a *App) {
		a.Use(Recovery(a.logger))
		a.Use(RequestIDMiddleware(""))
		a.Use(LoggingMiddleware(a.logger))
		a.Use(MetricsMiddleware())
	}
}

// New creates a configured App instance. It never starts network listeners.
// WithLogger must come before options that capture the logger.
func New(name string, opts ...Option) *App {
	l := log.Logger.With().Str("app", name).Logger()

	a := &App{
		Name:            name,
		Addr:            ":3000",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		logger:          &l,
		router:          http.NewServeMux(),
		middleware:      make([]Middleware, 0),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Logger returns the App's logger.
func (a *App) Logger() Logger { return a.logger }

// Engines returns the database engines, or nil when none are configured.
func (a *App) Engines() *sqldb.Engines { return a.engines }

// NewPool returns a pool over the App's engines for work outside a
// request, such as setup or background jobs. The caller closes it. A nil
// pool means no databases are configured.
func (a *App) NewPool() *sqldb.Pool { return a.engines.NewPool() }

// SyncDB creates the tables of every schema in reg on every configured
// database.
func (a *App) SyncDB(ctx context.Context, reg *sqldb.Registry) error {
	pool := a.NewPool()
	if pool == nil {
		return sqldb.ErrNotConfigured
	}
	defer pool.Close()
	return sqldb.SyncDB(ctx, pool, reg)
}

// Use appends middleware to the middleware stack.
// Middlewares are applied in registration order with the first registered
// being the outer-most wrapper.
func (a *App) Use(m Middleware) {
	a.middleware = append(a.middleware, m)
}

// SetRouter replaces the App's router. If nil is provided the default
// ServeMux is used.
func (a *App) SetRouter(h http.Handler) {
	if h == nil {
		h = http.NewServeMux()
	}
	a.router = h
}

// Handler builds the final http.Handler by applying middleware to the router.
func (a *App) Handler() http.Handler {
	var h http.Handler = a.router
	// apply in reverse so the first registered is outer-most
	for i := len(a.middleware) - 1; i >= 0; i-- {
		h = a.middleware[i](h)
	}
	return h
}

// Start starts the HTTP server in a background goroutine and returns immediately.
// It returns ErrAppAlreadyRunning if called while the server is already running.
func (a *App) Start() error {
	if !atomic.CompareAndSwapInt32(&a.state, 0, 1) {
		return ErrAppAlreadyRunning
	}

	srv := &http.Server{
		Addr:         a.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.ReadTimeout,
		WriteTimeout: a.WriteTimeout,
		IdleTimeout:  a.IdleTimeout,
	}
	a.server = srv

	go func() {
		a.logger.Printf("starting %s on %s", a.Name, a.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Printf("server error: %v", err)
		}
		atomic.StoreInt32(&a.state, 2)
	}()

	return nil
}

// Run starts the server and blocks until a termination signal is received or
// the context is canceled. It performs a graceful shutdown with the configured
// ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		a.logger.Printf("context canceled, shutting down: %v", ctx.Err())
	case sig := <-sigCh:
		a.logger.Printf("received signal %s, shutting down", sig)
	}

	t := a.ShutdownTimeout
	if t <= 0 {
		t = 10 * time.Second
	}
	ctxShutdown, cancel := context.WithTimeout(context.Background(), t)
	defer cancel()

	return a.Shutdown(ctxShutdown)
}

// Shutdown gracefully stops the HTTP server. It is safe to call multiple
// times. Database engines are left open; their owner closes them.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&a.state, 1, 2) {
		if atomic.LoadInt32(&a.state) == 2 {
			return nil
		}
	}

	a.logger.Printf("shutting down %s", a.Name)
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Printf("shutdown error: %v; attempting force close", err)
		if cerr := a.server.Close(); cerr != nil {
			a.logger.Printf("force close error: %v", cerr)
		}
		return fmt.Errorf("shutdown: %w", err)
	}

	a.logger.Printf("shutdown complete")
	return nil
}

// ServeHTTP implements http.Handler so App can be used directly in tests.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Handler().ServeHTTP(w, r)
}
