package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/sos-core/internal/core/config"
	"github.com/mohammed-shakir/sos-core/internal/core/health"
	middleware "github.com/mohammed-shakir/sos-core/internal/core/middleware"
	"github.com/mohammed-shakir/sos-core/internal/core/router"
)

// NewHandler builds the chi router with probes, metrics and the SOS routes.
func NewHandler(logger *slog.Logger, deps router.Deps, checks ...health.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Method(http.MethodGet, "/healthz", health.Liveness())
	r.Method(http.MethodHead, "/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(checks...))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if deps.Logger == nil {
		deps.Logger = logger
	}
	router.Mount(r, deps)
	return r
}

// Run serves handler on cfg.Addr until ctx is done, then shuts down
// gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
