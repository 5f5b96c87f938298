package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/platinummonkey/brace/pkg/api"
	"github.com/platinummonkey/brace/pkg/builtin"
	"github.com/platinummonkey/brace/pkg/config"
	"github.com/platinummonkey/brace/pkg/httputil"
	"github.com/platinummonkey/brace/pkg/i18n"
	"github.com/platinummonkey/brace/pkg/journal"
	"github.com/platinummonkey/brace/pkg/notify"
	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// flags override the environment
	flag.StringVar(&cfg.Plugins.Dir, "plugins-dir", cfg.Plugins.Dir, "Directory scanned for plugin packages")
	flag.StringVar(&cfg.Plugins.Extension, "ext", cfg.Plugins.Extension, "File extension of plugin packages")
	flag.BoolVar(&cfg.Plugins.Watch, "watch", cfg.Plugins.Watch, "Register packages dropped into the plugins directory after startup")
	flag.StringVar(&cfg.Plugins.RescanSchedule, "rescan", cfg.Plugins.RescanSchedule, "Cron schedule for rescanning the plugins directory")
	flag.StringVar(&cfg.Server.Addr, "admin-addr", cfg.Server.Addr, "Admin API listen address (empty disables it)")
	flag.StringVar(&cfg.Journal.DSN, "journal", cfg.Journal.DSN, "SQLite file for the lifecycle journal (empty disables it)")
	logLevel := flag.String("log-level", cfg.Observability.LogLevel.String(), "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.Observability.LogLevel = observability.ParseLevel(*logLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel.String(), cfg.Observability.LogFormat, os.Stderr)
	logger.WithField("version", version).Info("Starting brace plugin host")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("brace stopped with errors")
	}
	logger.Info("brace stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	var pluginMetrics *plugins.Metrics
	var httpMetrics *observability.HTTPMetrics
	if cfg.Observability.MetricsEnabled {
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pluginMetrics = plugins.NewMetrics(promRegistry)
		httpMetrics = observability.NewHTTPMetrics(promRegistry)
	}

	host := plugins.NewHostNamespace()
	if err := builtin.Register(host, logger); err != nil {
		return fmt.Errorf("failed to register builtin types: %w", err)
	}

	sinks := []plugins.EventSink{journal.NewLogSink(logger)}

	var (
		db     *sql.DB
		events *journal.SQLJournal
	)
	if cfg.Journal.DSN != "" {
		db, err = journal.OpenSQLite(cfg.Journal.DSN)
		if err != nil {
			return err
		}
		events, err = journal.New(db)
		if err != nil {
			db.Close()
			return err
		}
		sinks = append(sinks, events)
	}

	var webhook *notify.Webhook
	if cfg.Webhook.URL != "" {
		webhook, err = notify.New(cfg.Webhook.URL,
			notify.WithSecret(cfg.Webhook.Secret),
			notify.WithFailuresOnly(cfg.Webhook.FailuresOnly),
			notify.WithRetry(notify.RetryConfig{MaxAttempts: cfg.Webhook.MaxAttempts}),
			notify.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		sinks = append(sinks, webhook)
	}

	registry := plugins.NewRegistry(cfg.Plugins.Dir, host,
		plugins.WithExtension(cfg.Plugins.Extension),
		plugins.WithLogger(logger),
		plugins.WithTranslator(i18n.New(cfg.Observability.Lang)),
		plugins.WithMetrics(pluginMetrics),
		plugins.WithSink(journal.Multi(sinks...)),
	)

	// Background services
	g, gctx := errgroup.WithContext(ctx)
	if webhook != nil {
		g.Go(func() error { return webhook.Run(gctx) })
	}

	// individual plugin failures are logged by the registry and do not stop the host
	if err := registry.Bootstrap(ctx); err != nil {
		if errors.Is(err, plugins.ErrDirectoryUnavailable) {
			return err
		}
		logger.WithError(err).Warn("Some plugins failed to initialize")
	}
	if err := registry.ActivateAll(ctx); err != nil {
		logger.WithError(err).Warn("Some plugins failed to activate")
	}
	logger.WithField("plugins", registry.IDs()).Info("Plugin host ready")

	if cfg.Plugins.Watch {
		watcher := plugins.NewWatcher(registry,
			plugins.WithAutoStart(cfg.Plugins.AutoStart),
			plugins.WithSettleDelay(cfg.Plugins.SettleDelay),
		)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	scheduler := cron.New()
	if cfg.Plugins.RescanSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.Plugins.RescanSchedule, func() {
			rescan(gctx, registry, cfg.Plugins.AutoStart, logger)
		}); err != nil {
			return fmt.Errorf("failed to schedule rescan: %w", err)
		}
	}
	if events != nil && cfg.Journal.Retention > 0 {
		if _, err := scheduler.AddFunc("@daily", func() {
			removed, err := events.Cleanup(gctx, time.Now().Add(-cfg.Journal.Retention))
			if err != nil {
				logger.WithError(err).Warn("Journal cleanup failed")
				return
			}
			logger.WithField("removed", removed).Debug("Journal cleanup complete")
		}); err != nil {
			return fmt.Errorf("failed to schedule journal cleanup: %w", err)
		}
	}
	scheduler.Start()

	var server *http.Server
	if cfg.Server.Addr != "" {
		health := observability.NewHealthChecker(db, cfg.Plugins.Dir, version)
		health.AddCheck("plugins", false, registry.HealthCheck)

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithInspector(plugins.NewInspector(host, cfg.Plugins.ManifestCacheSize, cfg.Plugins.ManifestCacheTTL)),
			api.WithHealth(health),
		}
		if events != nil {
			opts = append(opts, api.WithJournal(events))
		}
		if cfg.Server.RateLimit > 0 {
			opts = append(opts, api.WithRateLimit(httputil.NewRateLimiter(httputil.RateLimitConfig{
				RequestsPerWindow: cfg.Server.RateLimit,
				WindowDuration:    time.Minute,
			})))
		}
		if httpMetrics != nil {
			opts = append(opts, api.WithMetrics(httpMetrics, promRegistry))
		}

		server = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.NewServer(registry, opts...).Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
		g.Go(func() error {
			logger.WithField("addr", cfg.Server.Addr).Info("Admin API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	if server != nil {
		shutdown.Register("admin-server", server.Shutdown)
	}
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("plugins", func(ctx context.Context) error {
		return uninstallActive(ctx, registry)
	})
	shutdown.Register("background", func(context.Context) error {
		cancel()
		return g.Wait()
	})
	if db != nil {
		shutdown.Register("journal", func(context.Context) error {
			return db.Close()
		})
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	// a failing background service also triggers the shutdown
	shutdown.Wait(gctx)
	return shutdown.Shutdown(context.Background())
}

// rescan registers packages added since the last scan
func rescan(ctx context.Context, registry *plugins.Registry, autoStart bool, logger *logrus.Logger) {
	added, err := registry.Rescan(ctx)
	if err != nil {
		logger.WithError(err).Warn("Rescan failed")
		return
	}
	if !autoStart {
		return
	}
	for _, u := range added {
		if err := registry.InitOne(ctx, u.ID()); err != nil {
			continue
		}
		_ = registry.ActivateOne(ctx, u.ID())
	}
}

// uninstallActive uninstalls every active plugin. Plugins that never became
// active have nothing to undo.
func uninstallActive(ctx context.Context, registry *plugins.Registry) error {
	var errs []error
	for _, u := range registry.List() {
		if u.State() != plugins.StateActive {
			continue
		}
		if err := registry.UninstallOne(ctx, u.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
