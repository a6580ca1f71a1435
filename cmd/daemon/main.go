// SPDX-License-Identifier: MIT

// Command daemon runs buildmetad, the CI build metadata service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forgeci/buildmetad/internal/api"
	"github.com/forgeci/buildmetad/internal/buildmeta"
	"github.com/forgeci/buildmetad/internal/config"
	"github.com/forgeci/buildmetad/internal/fsutil"
	"github.com/forgeci/buildmetad/internal/journal"
	bmlog "github.com/forgeci/buildmetad/internal/log"
	"github.com/forgeci/buildmetad/internal/settings"
	"github.com/forgeci/buildmetad/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	bmlog.Configure(bmlog.Config{
		Level:   "info",
		Service: "buildmetad",
		Version: version,
	})
	logger := bmlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise auto-load
	// ${BUILDMETAD_DATA}/config.yaml when it exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("BUILDMETAD_DATA", config.Defaults().DataDir))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(bmlog.FieldEvent, "config.load_failed").
			Str(bmlog.FieldPath, effectiveConfigPath).
			Msg("failed to load configuration")
	}

	bmlog.Configure(bmlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger.Info().
		Str(bmlog.FieldEvent, "config.loaded").
		Str("path", effectiveConfigPath).
		Str("listen", cfg.ListenAddr).
		Msg("configuration loaded")

	if err := run(ctx, cfg, loader, effectiveConfigPath, logger); err != nil {
		logger.Fatal().
			Err(err).
			Str(bmlog.FieldEvent, "daemon.failed").
			Msg("daemon exited with error")
	}
	logger.Info().Str(bmlog.FieldEvent, "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.AppConfig, loader *config.Loader, configPath string, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := buildmeta.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close metadata store")
		}
	}()

	jnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return fmt.Errorf("open resolution journal: %w", err)
	}
	defer func() {
		if err := jnl.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close resolution journal")
		}
	}()

	// Settings cache: Redis when configured and reachable, otherwise
	// the in-process cache.
	cache, redisCache := newSettingsCache(cfg, logger)
	if stopper, ok := cache.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}
	if redisCache != nil {
		defer func() { _ = redisCache.Close() }()
	}

	provider := &swappableProvider{
		inner: settings.NewStaticProvider(cfg.Projects, cfg.Runners),
	}
	cached := settings.NewCachedProvider(provider, cache, cfg.CacheTTL)
	service := buildmeta.NewService(store, cached, jnl)

	tracer, err := telemetry.NewProvider(ctx, cfg.Tracing, cfg.LogService, cfg.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("failed to shut down tracer")
		}
	}()

	opts := []api.ServerOption{api.WithHistory(jnl)}
	if redisCache != nil {
		opts = append(opts, api.WithReadinessCheck("redis", redisCache.HealthCheck))
	}
	apiServer := api.New(cfg, store, service, opts...)
	httpServer := apiServer.HTTPServer()

	holder := config.NewHolder(cfg, loader, configPath)
	defer holder.Stop()

	g, ctx := errgroup.WithContext(ctx)

	// Config file watcher is best-effort: startup must not fail when
	// inotify is unavailable.
	if configPath != "" {
		if err := holder.StartWatcher(ctx); err != nil {
			logger.Warn().
				Err(err).
				Str(bmlog.FieldEvent, "config.watcher_start_failed").
				Msg("failed to start config watcher")
		}

		reloadCh := make(chan config.AppConfig, 1)
		holder.RegisterListener(reloadCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case newCfg := <-reloadCh:
					applyReload(newCfg, provider, cache, logger)
				}
			}
		})
	}

	// SIGHUP triggers a manual reload.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info().
					Str(bmlog.FieldEvent, "config.reload_signal").
					Msg("received SIGHUP, reloading config")
				if err := holder.Reload(ctx); err != nil {
					logger.Warn().
						Err(err).
						Str(bmlog.FieldEvent, "config.reload_failed").
						Msg("config reload failed")
				}
			}
		}
	})

	// Periodic status.json export.
	if cfg.StatusInterval > 0 {
		g.Go(func() error {
			exportStatus(ctx, cfg, store, logger)
			return nil
		})
	}

	// HTTP server lifecycle.
	g.Go(func() error {
		logger.Info().
			Str(bmlog.FieldEvent, "server.starting").
			Str("addr", cfg.ListenAddr).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info().
			Str(bmlog.FieldEvent, "server.stopping").
			Dur("timeout", cfg.ShutdownTimeout).
			Msg("draining HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSettingsCache returns the settings cache to use, preferring Redis
// when configured. The second return value is non-nil only for Redis so
// the caller can register its health check and close it.
func newSettingsCache(cfg config.AppConfig, logger zerolog.Logger) (settings.Cache, *settings.RedisCache) {
	if cfg.Redis.Addr == "" {
		return settings.NewMemoryCache(time.Minute), nil
	}

	rc, err := settings.NewRedisCache(settings.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(bmlog.FieldEvent, "cache.redis_unavailable").
			Str("addr", cfg.Redis.Addr).
			Msg("Redis unavailable, falling back to in-memory settings cache")
		return settings.NewMemoryCache(time.Minute), nil
	}
	return rc, rc
}

// applyReload swaps in project and runner settings from a freshly
// loaded config and drops stale cache entries.
func applyReload(newCfg config.AppConfig, provider *swappableProvider, cache settings.Cache, logger zerolog.Logger) {
	provider.swap(settings.NewStaticProvider(newCfg.Projects, newCfg.Runners))
	cache.Clear()

	bmlog.Configure(bmlog.Config{
		Level:   newCfg.LogLevel,
		Service: newCfg.LogService,
		Version: newCfg.Version,
	})

	logger.Info().
		Str(bmlog.FieldEvent, "config.applied").
		Int("projects", len(newCfg.Projects)).
		Int("runners", len(newCfg.Runners)).
		Msg("reloaded settings applied")
}

// exportStatus writes an atomic status.json snapshot on a fixed
// interval until ctx is cancelled.
func exportStatus(ctx context.Context, cfg config.AppConfig, store *buildmeta.Store, logger zerolog.Logger) {
	start := time.Now()
	ticker := time.NewTicker(cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := store.Stats(ctx)
			if err != nil {
				logger.Warn().
					Err(err).
					Str(bmlog.FieldEvent, "status.stats_failed").
					Msg("failed to collect build counts")
				continue
			}

			builds := make(map[string]int, len(counts))
			for status, n := range counts {
				builds[status.String()] = n
			}
			snap := statusSnapshot{
				Service:       cfg.LogService,
				Version:       cfg.Version,
				UptimeSeconds: int64(time.Since(start).Seconds()),
				Builds:        builds,
				GeneratedAt:   time.Now().UTC(),
			}

			if err := fsutil.WriteJSONAtomic(ctx, cfg.StatusFile(), snap); err != nil {
				logger.Warn().
					Err(err).
					Str(bmlog.FieldEvent, "status.write_failed").
					Str(bmlog.FieldPath, cfg.StatusFile()).
					Msg("failed to write status snapshot")
			}
		}
	}
}

// swappableProvider lets the settings source be replaced on config
// reload without rebuilding the service graph.
type swappableProvider struct {
	mu    sync.RWMutex
	inner settings.Provider
}

func (p *swappableProvider) ProjectDefaultTimeout(ctx context.Context, projectID string) (time.Duration, error) {
	p.mu.RLock()
	inner := p.inner
	p.mu.RUnlock()
	return inner.ProjectDefaultTimeout(ctx, projectID)
}

func (p *swappableProvider) RunnerMaxTimeout(ctx context.Context, runnerID string) (time.Duration, error) {
	p.mu.RLock()
	inner := p.inner
	p.mu.RUnlock()
	return inner.RunnerMaxTimeout(ctx, runnerID)
}

func (p *swappableProvider) swap(inner settings.Provider) {
	p.mu.Lock()
	p.inner = inner
	p.mu.Unlock()
}

// statusSnapshot is the shape of the periodic status.json export.
type statusSnapshot struct {
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Builds        map[string]int `json:"builds"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
