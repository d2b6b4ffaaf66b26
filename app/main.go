package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/workflow-pulse/app/api"
	"github.com/lysyi3m/workflow-pulse/app/cache"
	"github.com/lysyi3m/workflow-pulse/app/cfg"
	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/database"
	"github.com/lysyi3m/workflow-pulse/app/ingest"
	"github.com/lysyi3m/workflow-pulse/app/status"
	"github.com/lysyi3m/workflow-pulse/app/tasks"
	"github.com/lysyi3m/workflow-pulse/app/upstream"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Workflow Pulse stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting Workflow Pulse", "version", cfg.GetVersion(), "postgres", appCfg.UsesPostgres())

	db, err := database.Open(ctx, appCfg.DatabaseURL, appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	repo := database.NewWorkflowRepository(db)
	defer repo.Close()

	settings, err := collector.LoadSettings(appCfg.SourcesFile)
	if err != nil {
		return fmt.Errorf("failed to load source settings: %w", err)
	}

	if appCfg.YouTubeAPIKey == "" {
		slog.Warn("YOUTUBE_API_KEY not set, youtube source will collect nothing")
	}

	client := upstream.NewClient(upstream.NewHTTPClient(appCfg.UpstreamTimeout), appCfg.UserAgent, appCfg.UpstreamTimeout)
	registry := collector.NewDefaultRegistry(settings, client, appCfg.YouTubeAPIKey, upstream.PolicyByName(appCfg.UpstreamPolicy))

	var (
		listCache   cache.ListCache
		invalidator cache.Invalidator
	)
	if appCfg.RedisAddr != "" {
		redisCache, err := cache.NewCache(ctx, appCfg.RedisAddr, appCfg.CacheTTL)
		if err != nil {
			slog.Warn("Read cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			listCache, invalidator = redisCache, redisCache
		}
	}

	orchestrator := ingest.NewOrchestrator(repo, invalidator)

	if appCfg.Collect != "" {
		return collectOnce(ctx, registry, orchestrator, appCfg.Collect, appCfg.Countries)
	}

	inferer := status.NewInferer(repo, appCfg.Interval())

	scheduler := tasks.NewScheduler(inferer, registry, orchestrator, appCfg.Countries, appCfg.Interval())
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(repo, inferer, registry, orchestrator, listCache)
	engine := api.NewServer(handler, appCfg.TriggerSecret, appCfg.AllowedHosts, appCfg.Debug)

	// Triggered collections run synchronously and may outlast a short write timeout.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "sources", registry.Names(), "countries", appCfg.Countries)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}

// collectOnce runs a single pass and reports per-pair outcomes.
func collectOnce(ctx context.Context, registry *collector.Registry, orchestrator *ingest.Orchestrator, source string, countries []string) error {
	sources, err := registry.Resolve(source)
	if err != nil {
		return err
	}

	report, err := orchestrator.Run(ctx, sources, countries)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	for _, o := range report.Outcomes {
		if o.Err != nil {
			slog.Warn("Collection outcome", "source", o.Source, "country", o.Country, "error", o.Err)
			continue
		}
		slog.Info("Collection outcome", "source", o.Source, "country", o.Country, "count", o.Count)
	}
	slog.Info("One-shot collection complete", "run_id", report.RunID, "total", report.Total, "created", report.Created)
	return nil
}
