// Oracle backend server — fronts the LLM providers and exposes the
// medical-assistant HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/proxima-health/oracle/pkg/api"
	"github.com/proxima-health/oracle/pkg/cleanup"
	"github.com/proxima-health/oracle/pkg/config"
	"github.com/proxima-health/oracle/pkg/contextmgr"
	"github.com/proxima-health/oracle/pkg/database"
	"github.com/proxima-health/oracle/pkg/deepdive"
	"github.com/proxima-health/oracle/pkg/email"
	"github.com/proxima-health/oracle/pkg/followup"
	"github.com/proxima-health/oracle/pkg/httpx"
	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/photo"
	"github.com/proxima-health/oracle/pkg/quickscan"
	"github.com/proxima-health/oracle/pkg/reports"
	"github.com/proxima-health/oracle/pkg/store"
	"github.com/proxima-health/oracle/pkg/tier"
	"github.com/proxima-health/oracle/pkg/tokens"
	"github.com/proxima-health/oracle/pkg/tracking"
	"github.com/proxima-health/oracle/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting oracle", "version", version.Full(), "http_port", httpPort, "debug", cfg.Debug)

	ctx := context.Background()

	// Database: open pool, apply embedded migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.DB)

	// LLM orchestration: model selection table, tier cache, token
	// counter, router client.
	selector, err := llm.NewModelSelector(cfg.ModelConfigPath)
	if err != nil {
		slog.Error("Failed to load model configuration", "path", cfg.ModelConfigPath, "error", err)
		os.Exit(1)
	}
	tiers := tier.NewResolver(st)
	counter := tokens.NewCounter()
	httpClient := httpx.NewClient()

	orchestrator := llm.NewOrchestrator(httpClient, selector, tiers, counter, llm.ProviderConfig{
		RouterURL:       cfg.OpenRouterURL,
		RouterAPIKey:    cfg.OpenRouterAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AppURL:          cfg.AppURL,
	})
	contexts := contextmgr.NewManager(orchestrator, st, counter)

	// Object store for non-sensitive photos. Missing credentials
	// degrade to temporary-data-only handling.
	var objects photo.ObjectStore
	if cfg.StorageEndpoint != "" {
		s3Store, err := photo.NewS3Store(photo.S3Config{
			Bucket:   cfg.StorageBucket,
			Region:   cfg.StorageRegion,
			Endpoint: cfg.StorageEndpoint,
		})
		if err != nil {
			slog.Error("Failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		objects = s3Store
		slog.Info("Object storage initialized", "bucket", cfg.StorageBucket)
	} else {
		slog.Warn("No object storage configured, photos held as temporary data only")
	}

	// Domain engines. Tracking doubles as the symptom tracker for the
	// scan engines and the tracking reader for follow-ups.
	trackingEngine := tracking.NewEngine(st, orchestrator)
	quickScans := quickscan.NewEngine(st, orchestrator, contexts, trackingEngine)
	deepDives := deepdive.NewEngine(st, orchestrator)
	photos := photo.NewService(st, orchestrator, objects, trackingEngine)
	followUps := followup.NewEngine(st, orchestrator, trackingEngine)
	reportEngine := reports.NewEngine(st, orchestrator, cfg.AppURL)

	sender := email.NewSendGridSender(httpClient, cfg.SendGridAPIKey, cfg.EmailFromAddress, cfg.EmailFromName)
	emails := email.NewService(st, sender)

	// Email retry workers scan the queue for rows whose next_retry_at
	// elapsed.
	workers := make([]*email.Worker, 0, cfg.EmailWorkerCount)
	for i := 0; i < cfg.EmailWorkerCount; i++ {
		w := email.NewWorker(fmt.Sprintf("email-%d", i), emails, cfg.EmailRetryInterval, 0)
		w.Start(ctx)
		workers = append(workers, w)
	}
	slog.Info("Email workers started", "count", len(workers))

	retention := cleanup.NewService(st, 0)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(api.Deps{
		DB:         dbClient.DB.DB,
		Store:      st,
		QuickScans: quickScans,
		DeepDives:  deepDives,
		Photos:     photos,
		FollowUps:  followUps,
		Reports:    reportEngine,
		Tracking:   trackingEngine,
		Emails:     emails,
		Caller:     orchestrator,
		Contexts:   contexts,
		Tiers:      tiers,
		Models:     selector,
		Debug:      cfg.Debug,
	})

	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Drain workers first so in-flight sends finish before the pool
	// closes, then stop the HTTP server on its own budget.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, 30*time.Second)
	defer workerCancel()

	workersDone := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Stop()
		}
		close(workersDone)
	}()

	select {
	case <-workersDone:
		slog.Info("Email workers stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Email worker shutdown timeout exceeded — queued sends resume on restart")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
