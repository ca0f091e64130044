// ClaimRisk - Insurance claim fraud scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/claimrisk/internal/analysis"
	"github.com/opensource-finance/claimrisk/internal/api"
	"github.com/opensource-finance/claimrisk/internal/bus"
	"github.com/opensource-finance/claimrisk/internal/cache"
	"github.com/opensource-finance/claimrisk/internal/config"
	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/logging"
	"github.com/opensource-finance/claimrisk/internal/repository"
	"github.com/opensource-finance/claimrisk/internal/tracing"
	"github.com/opensource-finance/claimrisk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "claimrisk.yaml", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("starting claimrisk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"history", cfg.Analysis.HistorySource,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	store, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	svc, err := analysis.NewFromConfig(ctx, cfg.Analysis, repo, store, busImpl)
	if err != nil {
		slog.Error("failed to initialize analysis service", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis service initialized",
		"rules_count", len(svc.Rules()),
		"model_version", svc.ModelVersion(),
	)

	asyncWorker := worker.NewWorker(busImpl, svc)
	if err := asyncWorker.Start(worker.Config{Concurrency: cfg.Analysis.BatchConcurrency}); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}
	slog.Info("async worker started", "concurrency", cfg.Analysis.BatchConcurrency)

	srv := api.NewServer(cfg.Server, svc, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("claimrisk is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop consuming before the server so in-flight analyses finish.
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("claimrisk shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                CLAIMRISK                  ║")
	fmt.Println("  ║      Insurance Claim Fraud Scoring        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /api/analysis/analyze             - Analyze a claim")
	fmt.Println("    GET    /api/analysis/results/{id}        - Get cached analysis")
	fmt.Println("    DELETE /api/analysis/results/{id}        - Evict cached analysis")
	fmt.Println("    POST   /api/analysis/batch               - Analyze many claims")
	fmt.Println("    GET    /api/analysis/batch-analyze       - Analyze many claims (query)")
	fmt.Println("    GET    /api/analysis/feature-importance  - Model feature importance")
	fmt.Println("    POST   /api/analysis/explain/{id}        - Explain an analysis")
	fmt.Println("    POST   /api/claims                       - Submit a claim")
	fmt.Println("    GET    /api/claims/{id}                  - Get a claim")
	fmt.Println("    GET    /api/claims/{id}/benford          - Benford chart data")
	fmt.Println("    GET    /api/rules                        - List rules")
	fmt.Println("    POST   /api/rules                        - Create a custom rule")
	fmt.Println("    POST   /api/rules/reload                 - Hot-reload custom rules")
	fmt.Println("    GET    /health                           - Liveness")
	fmt.Println("    GET    /ready                            - Readiness")
	fmt.Println("    GET    /metrics                          - Prometheus metrics")
	fmt.Println()
}
