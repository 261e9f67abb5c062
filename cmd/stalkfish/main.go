// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/collector"
	"github.com/olegiv/stalkfish-go/internal/config"
	"github.com/olegiv/stalkfish-go/internal/deferred"
	"github.com/olegiv/stalkfish-go/internal/exclude"
	"github.com/olegiv/stalkfish-go/internal/handler"
	"github.com/olegiv/stalkfish-go/internal/handler/api"
	"github.com/olegiv/stalkfish-go/internal/keys"
	"github.com/olegiv/stalkfish-go/internal/logging"
	"github.com/olegiv/stalkfish-go/internal/logpipe"
	"github.com/olegiv/stalkfish-go/internal/middleware"
	"github.com/olegiv/stalkfish-go/internal/pipes"
	"github.com/olegiv/stalkfish-go/internal/settings"
	"github.com/olegiv/stalkfish-go/internal/store"
	"github.com/olegiv/stalkfish-go/internal/tracker"
	"github.com/olegiv/stalkfish-go/internal/users"
	"github.com/olegiv/stalkfish-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// onboardingVersion is stored on first start so the host can show setup.
const onboardingVersion = "1.0.0"

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Stalkfish - activity and error monitoring agent\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_ADMIN_TOKEN         Bearer token for the local API (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_DB_PATH             SQLite database path (default: ./data/stalkfish.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_SERVER_PORT         Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_ENV                 Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_COLLECTOR_URL       Collector base URL (default: %s)\n", config.DefaultCollectorURL)
		_, _ = fmt.Fprintf(os.Stderr, "  SF_SITE_URL            Public URL of the monitored site\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SF_REDIS_URL           Redis URL for shared transient state (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	if *showVersion {
		_, _ = fmt.Println(info.String())
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	// Error records are forwarded to the tracker once it exists.
	trackerHandler := logging.NewTrackerHandler(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}), nil)
	logger := slog.New(trackerHandler)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisURL = cfg.RedisURL
	cacheCfg.Prefix = cfg.CachePrefix
	sharedCache, err := cache.New(cacheCfg)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = sharedCache.Close() }()
	if cfg.UseRedisCache() {
		slog.Info("using redis cache", "url", cache.SanitizeRedisURL(cfg.RedisURL))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	options, err := settings.Open(ctx, settings.NewSQLBackend(db), logger)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if options.APIKey() == "" {
		if !options.Has(settings.KeyOnboardingVersion) {
			if err := options.Set(ctx, settings.KeyOnboardingVersion, onboardingVersion); err != nil {
				slog.Error("failed to store onboarding version", "error", err)
			}
		}
		slog.Warn("no API key configured; the collector will reject events until one is saved")
	}

	directory := users.New(db, sharedCache, logger)

	matcher := exclude.NewMatcher(directory, logger)
	matcher.Reload(ctx, options.ExclusionRules())
	directory.OnRemember(matcher.UserChanged)
	options.OnChange(func(ctx context.Context, key string) {
		if key == settings.KeyExcludeRules {
			matcher.Reload(ctx, options.ExclusionRules())
		}
	})

	client, err := collector.New(collector.Options{
		BaseURL:   cfg.CollectorURL,
		Timeout:   cfg.HTTPTimeout,
		UserAgent: info.UserAgent(),
	})
	if err != nil {
		return fmt.Errorf("creating collector client: %w", err)
	}

	runtimeInfo := logpipe.Runtime{
		HostVersion:   cfg.HostVersion,
		PluginVersion: info.PluginVersion(),
		Environment:   cfg.Env,
	}

	runner := deferred.NewRunner(db, cfg.DeferredSchedule, cfg.DeferredBatch, logger)
	pipeline := logpipe.New(logpipe.Options{
		Settings:   options,
		Excluder:   matcher,
		Sender:     client,
		Queue:      deferred.NewSQLQueue(db),
		Users:      directory,
		Runtime:    runtimeInfo,
		RetryDelay: cfg.RetryDelay,
		RetryLimit: cfg.RetryLimit,
		Logger:     logger.With("component", "logpipe"),
	})
	runner.Handle(logpipe.ActionEnqueueRequest, pipeline.HandleDeferred)

	tr, err := tracker.Register(tracker.Options{
		Settings:       options,
		Sender:         client,
		Cache:          sharedCache,
		Batch:          cfg.BatchReports,
		MaxPayloadSize: cfg.MaxPayloadSize,
		Runtime:        runtimeInfo,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("registering error tracker: %w", err)
	}
	trackerHandler.SetReporter(tr)

	// Each tick is its own unit of work, so its reports are sent when it ends.
	runner.OnTickDone(tr.Flush)
	if err := runner.Start(); err != nil {
		return fmt.Errorf("starting deferred runner: %w", err)
	}
	defer runner.Stop()

	keyManager := keys.NewManager(options, client, sharedCache, cfg.SiteURL, logger)
	go func() {
		defer tr.Flush(context.WithoutCancel(ctx))
		if err := keyManager.Generate(ctx, false); err != nil {
			slog.Warn("public key not generated", "error", err)
		}
	}()

	catalog := pipes.NewCatalog()
	hooks := pipes.NewDefaultRegistry(logger)

	apiHandler := api.NewHandler(api.Deps{
		Options: options,
		Catalog: catalog,
		Hooks:   hooks,
		Events:  pipeline,
		Errors:  tr,
		Logger:  logger,
	})
	sfapi := handler.NewSFAPIHandler(options, keyManager,
		middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger), logger)

	healthHandler := handler.NewHealthHandler(db, runner, sharedCache, cfg.AdminToken, info.PluginVersion())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.GetHead)
	r.Use(middleware.Tracking(tr, logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(middleware.Compress(5, 1024))
	r.Use(sfapi.Intercept)

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Mount("/api/v1", apiHandler.Routes(middleware.AdminAuth(cfg.AdminToken)))

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", info.PluginVersion())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	tr.Flush(shutdownCtx)

	slog.Info("server stopped")
	return nil
}
