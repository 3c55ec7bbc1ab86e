package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"staybook/pkg/config"
	"staybook/pkg/contracts"
	"staybook/pkg/middleware"
	"syscall"

	"github.com/julienschmidt/httprouter"
)

// ShutdownHook releases a background component. Hooks run in reverse
// registration order after the HTTP server stopped accepting requests.
type ShutdownHook func(ctx context.Context) error

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore middleware.IdempotencyStore
	rateLimiter      *middleware.ActorRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	hooks            []namedHook
}

type namedHook struct {
	name string
	fn   ShutdownHook
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

func (a *Application) SetApp(appHandler contracts.Handler, healthHandler contracts.Handler) {
	a.setHealthHandler(healthHandler)
	a.setAppHandler(appHandler)
	a.setAppServer()
}

// OnShutdown registers fn to run during graceful shutdown.
func (a *Application) OnShutdown(name string, fn ShutdownHook) {
	a.hooks = append(a.hooks, namedHook{name: name, fn: fn})
}

func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler(healthHandler contracts.Handler) {
	healthRouter := httprouter.New()
	healthHandler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.idempotencyStore = a.newIdempotencyStore()
	a.rateLimiter = middleware.NewActorRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultKeyExtractor,
		a.cfg.Log,
	)

	// Middleware order: Recovery → Logging → MaxSize → ContentType → RateLimit → Timeout → Idempotency → Router
	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.ActorRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) newIdempotencyStore() middleware.IdempotencyStore {
	if a.cfg.Client.Redis != nil {
		a.cfg.Log.Info("Idempotency keys stored in Redis", "ttl", a.cfg.IdempotencyTTL)
		return middleware.NewRedisIdempotencyStore(a.cfg.Client.Redis, a.cfg.IdempotencyTTL, a.cfg.Log)
	}
	a.cfg.Log.Info("Idempotency keys stored in memory", "ttl", a.cfg.IdempotencyTTL)
	return middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.RequestTimeout + a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	for i := len(a.hooks) - 1; i >= 0; i-- {
		hook := a.hooks[i]
		if err := hook.fn(ctx); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "component", hook.name, "error", err)
		}
	}
	a.cfg.Log.Info("Background workers stopped")

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}
