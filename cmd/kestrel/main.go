// Kestrel - Order reconciliation and customer analytics.
// Copyright (c) 2025 opensource.commerce
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-commerce/kestrel/internal/api"
	"github.com/opensource-commerce/kestrel/internal/bus"
	"github.com/opensource-commerce/kestrel/internal/cache"
	"github.com/opensource-commerce/kestrel/internal/collect"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/fetch"
	"github.com/opensource-commerce/kestrel/internal/repository"
	"github.com/opensource-commerce/kestrel/internal/segment"
	"github.com/opensource-commerce/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for distributed profile via environment
	if os.Getenv("KESTREL_PROFILE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed profile")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Segment Engine with the built-in RFM segments. Tenants can
	// replace them via PUT /segments.
	segments, err := segment.NewEngine()
	if err != nil {
		slog.Error("failed to initialize segment engine", "error", err)
		os.Exit(1)
	}
	if err := segments.LoadSegments(segment.BuiltinSegments()); err != nil {
		slog.Error("failed to load built-in segments", "error", err)
		os.Exit(1)
	}
	slog.Info("segment engine initialized", "segments_count", len(segments.Segments()))

	// Initialize order fetchers from environment
	fetchers := buildFetchers()
	if len(fetchers) == 0 {
		slog.Warn("no order sources configured - set KESTREL_STOREFRONT_URL and/or KESTREL_MARKETPLACE_URL")
	}

	// Initialize Collection Service
	service := collect.NewService(cfg.Collect, cacheImpl, repo, busImpl, segments, fetchers...)
	slog.Info("collection service initialized",
		"sources", len(fetchers),
		"chunk_days", cfg.Collect.ChunkDays,
	)

	// Initialize async refresh Worker
	asyncWorker := worker.NewWorker(busImpl, service)

	tenantIDs := []string{}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		for _, t := range strings.Split(envTenants, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenantIDs = append(tenantIDs, t)
			}
		}
	}

	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start refresh worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, cacheImpl, repo, busImpl, segments, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop refresh worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop refresh worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers KESTREL_* environment variables over the profile
// defaults, so a distributed deployment can point at its own services.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if os.Getenv("KESTREL_ARCHIVE_ORDERS") == "true" {
		cfg.Collect.ArchiveOrders = true
	}
}

// buildFetchers creates an order fetcher per configured source.
func buildFetchers() []domain.OrderFetcher {
	var fetchers []domain.OrderFetcher

	if url := os.Getenv("KESTREL_STOREFRONT_URL"); url != "" {
		fetchers = append(fetchers, fetch.NewStorefrontClient(url, os.Getenv("KESTREL_STOREFRONT_TOKEN")))
		slog.Info("storefront source configured", "url", url)
	}
	if url := os.Getenv("KESTREL_MARKETPLACE_URL"); url != "" {
		fetchers = append(fetchers, fetch.NewMarketplaceClient(url, os.Getenv("KESTREL_MARKETPLACE_TOKEN")))
		slog.Info("marketplace source configured", "url", url)
	}

	return fetchers
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║   Order Reconciliation & Analytics        ║")
	fmt.Println("  ║    Every order, one customer view.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /orders             - Merged order set for a window")
	fmt.Println("    GET  /analytics/rfm      - RFM scores and segments")
	fmt.Println("    GET  /analytics/revenue  - New vs returning revenue")
	fmt.Println("    POST /refresh            - Async cache warming")
	fmt.Println("    GET  /segments           - List segment definitions")
	fmt.Println("    PUT  /segments           - Replace segment definitions")
	fmt.Println("    POST /segments/reload    - Reload built-in segments")
	fmt.Println("    GET  /cache/stats        - Cache statistics")
	fmt.Println("    POST /cache/invalidate   - Invalidate cached windows")
	fmt.Println("    GET  /runs               - Collection run audit")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
