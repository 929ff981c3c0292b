// Package metrics exposes Prometheus metrics for the service on a
// dedicated listener.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo
}

// FromEnv reads METRICS_ENABLED, METRICS_ADDR, METRICS_PATH and the BUILD_*
// variables.
func FromEnv() Config {
	cfg := Config{
		Enabled: strings.EqualFold(strings.TrimSpace(os.Getenv("METRICS_ENABLED")), "true"),
		Addr:    os.Getenv("METRICS_ADDR"),
		Path:    os.Getenv("METRICS_PATH"),
		Build: BuildInfo{
			Version:   os.Getenv("BUILD_VERSION"),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	return cfg
}

// Provider owns a private registry served on its own listener, apart from
// the OGC endpoints.
type Provider struct {
	cfg Config
	reg *prometheus.Registry
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo(cfg.Build),
	)
	return &Provider{cfg: cfg, reg: reg}
}

func buildInfo(b BuildInfo) prometheus.Collector {
	if b.Version == "" {
		b.Version = "dev"
	}
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sos",
		Name:      "build_info",
		Help:      "Build of the running binary. Always 1.",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"revision":   b.Revision,
			"branch":     b.Branch,
			"build_date": b.BuildDate,
		},
	}, func() float64 { return 1 })
}

func (p *Provider) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(p.reg, promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg}))
}

// Register adds collectors to the private registry and stops at the first
// duplicate.
func (p *Provider) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := p.reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Serve listens on the configured address until ctx is done.
func (p *Provider) Serve(ctx context.Context, log *slog.Logger) error {
	r := chi.NewRouter()
	r.Method(http.MethodGet, p.cfg.Path, p.Handler())
	srv := &http.Server{
		Addr:              p.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", "addr", p.cfg.Addr, "path", p.cfg.Path)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
