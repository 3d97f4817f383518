// Command extractor runs the newsgraph extraction pipeline's HTTP
// surface: article/fragment submission, job status, and health.
// Grounded on the teacher's cmd/tarsy/main.go (flag + godotenv + gin
// wiring shape).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gin-gonic/gin"

	"github.com/newsgraph/extractor/pkg/api"
	"github.com/newsgraph/extractor/pkg/auditstore"
	"github.com/newsgraph/extractor/pkg/config"
	"github.com/newsgraph/extractor/pkg/controller"
	"github.com/newsgraph/extractor/pkg/directory"
	"github.com/newsgraph/extractor/pkg/httpretry"
	"github.com/newsgraph/extractor/pkg/jobtracker"
	"github.com/newsgraph/extractor/pkg/llmclient"
	"github.com/newsgraph/extractor/pkg/payload"
	"github.com/newsgraph/extractor/pkg/pipeline"
	"github.com/newsgraph/extractor/pkg/promptstore"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	gin.SetMode(cfg.HTTP.GinMode)

	ctx := context.Background()

	audit, err := auditstore.Open(ctx, auditstore.FromAuditConfig(cfg.Audit))
	if err != nil {
		log.Fatalf("failed to open audit store: %v", err)
	}
	defer audit.Close()
	logger.Info("connected to audit database")

	retryPolicy := httpretry.Policy{
		MaxAttempts: cfg.Retry.MaxRetries,
		BackoffMin:  httpretry.DefaultBackoffMin,
		BackoffMax:  time.Duration(cfg.Retry.MaxWaitSeconds) * time.Second,
	}

	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, retryPolicy, logger)
	dir := directory.New(cfg.Directory.URL, cfg.Directory.Key, retryPolicy, logger)
	prompts := promptstore.New(cfg.Pipeline.PromptsDir)

	ctrl := &controller.Controller{
		Triage: &pipeline.Triage{
			Prompts:         prompts,
			LLM:             llm,
			WorkingLanguage: cfg.Pipeline.WorkingLanguage,
			ModelID:         cfg.LLM.ModelID,
			MaxTokens:       cfg.LLM.MaxTokens,
			Timeout:         cfg.LLM.Timeout,
		},
		BasicExtract: &pipeline.BasicExtraction{
			Prompts:   prompts,
			LLM:       llm,
			ModelID:   cfg.LLM.ModelID,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		},
		QuotesAndData: &pipeline.QuotesAndData{
			Prompts:   prompts,
			LLM:       llm,
			ModelID:   cfg.LLM.ModelID,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		},
		Relations: &pipeline.NormalizationAndRelations{
			Prompts:   prompts,
			LLM:       llm,
			Directory: dir,
			ModelID:   cfg.LLM.ModelID,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		},
		Payload:             payload.New(),
		Directory:           dir,
		Audit:               audit,
		AsyncThresholdChars: cfg.Pipeline.AsyncThresholdChars,
		Logger:              logger,
	}

	jobs := jobtracker.New(cfg.Pipeline.JobTrackerMaxEntries, time.Duration(cfg.Pipeline.JobRetentionMinutes)*time.Minute, logger)
	ctrl.Jobs = jobs

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go jobs.Run(sweepCtx, time.Minute)

	server := api.NewServer(ctrl, jobs, llm, dir)

	addr := ":" + cfg.HTTP.Port
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}
	ctrl.Shutdown()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
