package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/sos-core/internal/binding/kvp"
	"github.com/mohammed-shakir/sos-core/internal/binding/rest"
	"github.com/mohammed-shakir/sos-core/internal/core/config"
	"github.com/mohammed-shakir/sos-core/internal/core/health"
	"github.com/mohammed-shakir/sos-core/internal/core/observability"
	"github.com/mohammed-shakir/sos-core/internal/core/router"
	"github.com/mohammed-shakir/sos-core/internal/core/server"
	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/filter"
	"github.com/mohammed-shakir/sos-core/internal/logger"
	"github.com/mohammed-shakir/sos-core/internal/metrics"
	"github.com/mohammed-shakir/sos-core/internal/observation"
	"github.com/mohammed-shakir/sos-core/internal/profile"
	"github.com/mohammed-shakir/sos-core/internal/profile/events"
	"github.com/mohammed-shakir/sos-core/internal/profile/redisstore"
	"github.com/mohammed-shakir/sos-core/internal/service"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}
	evCfg := events.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Instance:  evCfg.Instance,
		Component: "sos",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 1
	}

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting sos server",
		"addr", cfg.Addr,
		"version", Version,
		"storage_epsg", cfg.StorageEPSG,
		"profile_store", cfg.Profiles.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcfg := metrics.FromEnv()
	var mp *metrics.Provider
	if mcfg.Enabled {
		mp = metrics.Init(mcfg)
		if err := observability.Init(mp.Registerer()); err != nil {
			appLog.Error("metrics registration failed", "err", err)
			return 1
		}
		go func() {
			if err := mp.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	store, checks, closeStore, err := openProfileStore(ctx, cfg)
	if err != nil {
		appLog.Error("profile store setup failed", "err", err)
		return 1
	}
	defer closeStore()

	sources := []fs.FS{profile.Bundled}
	if cfg.Profiles.Dir != "" {
		sources = append(sources, os.DirFS(cfg.Profiles.Dir))
	}
	profiles := profile.New(profile.Options{
		Logger:       appLog,
		Store:        store,
		Sources:      sources,
		PersistDelay: cfg.Profiles.PersistDelay,
	})
	if err := profiles.Load(ctx); err != nil {
		appLog.Error("profile load failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := profiles.Close(flushCtx); err != nil {
			appLog.Error("profile flush failed", "err", err)
		}
	}()

	eventsReg := eventsRegisterer(mp)
	if evCfg.Enabled {
		pub, err := events.NewPublisher(evCfg, events.PublisherOptions{Logger: appLog, Register: eventsReg})
		if err != nil {
			appLog.Error("profile event publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		profiles.OnLocalActivation(pub.PublishActivation)
	}
	runner := events.NewRunner(evCfg, profiles, events.Options{Logger: appLog, Register: eventsReg})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("profile event runner failed to start", "err", err)
		return 1
	}
	defer runner.Stop()

	features, err := feature.Load(cfg.FeaturesFile, feature.Options{
		Logger:     appLog,
		SRID:       cfg.StorageEPSG,
		Resolution: cfg.H3Res,
		CacheSize:  cfg.CoverageCache,
	})
	if err != nil {
		appLog.Error("feature load failed", "err", err)
		return 1
	}
	obs, err := observation.Load(cfg.ObservationsFile)
	if err != nil {
		appLog.Error("observation load failed", "err", err)
		return 1
	}
	appLog.Info("repositories loaded", "features", features.Len(), "observations", obs.Len())

	svc := service.New(service.Options{
		Logger:       appLog,
		Profiles:     profiles,
		Observations: obs,
		Features:     features,
		Title:        cfg.ServiceTitle,
		ProviderName: cfg.ProviderName,
		ProviderSite: cfg.ProviderSite,
	})
	filters := filter.NewBuilder(cfg.StorageEPSG)
	handler := server.NewHandler(appLog, router.Deps{
		Service:  svc,
		KVP:      kvp.NewDecoder(filters),
		REST:     rest.NewDecoder(filters),
		Profiles: profiles,
	}, append(checks, health.Check{Name: "profile_events", Reporter: runner})...)

	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// openProfileStore returns the configured store, a readiness check when the
// store is remote, and a close func.
func openProfileStore(ctx context.Context, cfg config.Config) (profile.Store, []health.Check, func(), error) {
	switch cfg.Profiles.Store {
	case config.StoreRedis:
		s, err := redisstore.New(ctx, cfg.RedisAddr, cfg.Profiles.RedisKey, redisstore.Options{})
		if err != nil {
			return nil, nil, nil, err
		}
		return s, []health.Check{{Name: "profile_store", Reporter: s}}, func() { _ = s.Close() }, nil
	case config.StoreFile:
		return profile.NewFileStore(cfg.Profiles.File), nil, func() {}, nil
	case config.StoreNone:
		return profile.NopStore{}, nil, func() {}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown profile store %q", cfg.Profiles.Store)
}

// eventsRegisterer places the event counters next to the other collectors:
// the dedicated registry when one is served, the default one otherwise.
func eventsRegisterer(p *metrics.Provider) prometheus.Registerer {
	if p == nil {
		return prometheus.DefaultRegisterer
	}
	return p.Registerer()
}
