package main

import (
	// Standard library
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/joho/godotenv"

	// Internal packages
	"github.com/callytics/callytics/cmd/server/internal/analytics"
	"github.com/callytics/callytics/cmd/server/internal/api"
	"github.com/callytics/callytics/cmd/server/internal/config"
	"github.com/callytics/callytics/cmd/server/internal/jobs"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/asr"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/audioproc"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/degradation"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/diarize"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/health"
	"github.com/callytics/callytics/cmd/server/internal/store"
	"github.com/callytics/callytics/cmd/server/internal/watch"
	"github.com/callytics/callytics/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logInstance, err := logger.Init(logger.Config{
		Level:           os.Getenv("LOG_LEVEL"),
		Environment:     os.Getenv("ENV"),
		WithSource:      !strings.EqualFold(os.Getenv("ENV"), "production"),
		PipelineLogPath: os.Getenv("PIPELINE_LOG_PATH"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "mode", cfg.Server.Mode)
	fmt.Println(cfg.PrintConfig())

	// Open the database
	st, err := store.Open(cfg.Data.DBPath)
	if err != nil {
		appLogger.Error("database open failed", "path", cfg.Data.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	appLogger.Info("database ready", "path", cfg.Data.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Model service clients
	transcriber := asr.NewWhisperHTTP(cfg.Models.WhisperURL, cfg.Models.WhisperModel)
	diarizer := diarize.NewPyannote(cfg.Models.DiarizerURL)
	enhancer := audioproc.NewHTTPEnhancer(cfg.Models.EnhancerURL)
	separator := audioproc.NewHTTPSeparator(cfg.Models.SeparatorURL)

	// Health monitoring for every sidecar, plus enhancement degradation
	enhancerChecker := health.NewHealthChecker(enhancer, cfg.Models.HealthCheckInterval, cfg.Models.HealthCheckFailThreshold)
	checkers := []*health.HealthChecker{
		health.NewHealthChecker(transcriber, cfg.Models.HealthCheckInterval, cfg.Models.HealthCheckFailThreshold),
		health.NewHealthChecker(diarizer, cfg.Models.HealthCheckInterval, cfg.Models.HealthCheckFailThreshold),
		enhancerChecker,
		health.NewHealthChecker(separator, cfg.Models.HealthCheckInterval, cfg.Models.HealthCheckFailThreshold),
	}
	for _, hc := range checkers {
		go hc.Start(ctx)
		defer hc.Stop()
	}
	enhancerCtrl := degradation.NewDegradationController(enhancer, audioproc.PassthroughEnhancer{}, enhancerChecker)
	appLogger.Info("model clients ready",
		"whisper", cfg.Models.WhisperURL,
		"diarizer", cfg.Models.DiarizerURL,
		"enhancer", cfg.Models.EnhancerURL,
		"separator", cfg.Models.SeparatorURL)

	// Text analytics
	chatClient := analytics.NewHTTPChatClient(
		cfg.Models.LLMURL, cfg.Models.LLMAPIKey, cfg.Models.LLMModel,
		cfg.Models.RequestTimeout, cfg.Models.LLMRetryAttempts)
	defaults := analytics.Defaults{
		Sentiment: cfg.Fallbacks.Sentiment,
		Topic:     cfg.Fallbacks.Topic,
		Role:      cfg.Fallbacks.Role,
		Summary:   cfg.Fallbacks.Summary,
		Profanity: cfg.Fallbacks.Profanity,
		Conflict:  cfg.Fallbacks.Conflict,
	}
	analyzer := analytics.NewAnalyzer(chatClient, defaults, logInstance.With("component", "analytics"))

	// Pipeline runner
	runner := orchestrator.NewRunner(
		orchestrator.RunnerConfig{
			ScratchDir:     cfg.Data.ScratchDir,
			OutputDir:      cfg.Data.OutputDir,
			DeleteOriginal: cfg.Pipeline.DeleteOriginal,
			NoiseThreshold: cfg.Pipeline.NoiseThreshold,
			Thresholds: audioproc.DialogueThresholds{
				MinDuration:   cfg.Dialogue.MinDuration,
				MinTurnCount:  cfg.Dialogue.MinTurnCount,
				MinSilenceGap: cfg.Dialogue.MinSilenceGap,
			},
			ASROptions: asr.Options{
				Model:            cfg.Models.WhisperModel,
				Device:           cfg.Models.Device,
				ComputePrecision: cfg.Models.ComputePrecision,
				Timeout:          cfg.Models.RequestTimeout,
			},
			MinSpeakers: 1,
			MaxSpeakers: 2,
		},
		st, transcriber, diarizer, enhancerCtrl, separator,
		analyzer, defaults,
		logInstance.With("component", "pipeline"),
	)

	// Job pool backs the submission API
	pool := jobs.NewPool(st, runner, cfg.Data.InputDir, cfg.Pipeline.Workers, 0,
		logInstance.With("component", "jobs"))
	pool.Start(ctx)
	defer pool.Stop()

	// Directory watcher front end
	if cfg.Server.Mode == "watch" || cfg.Server.Mode == "both" {
		watcher := watch.New(cfg.Data.WatchDir, runner, logInstance.With("component", "watch"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				appLogger.Error("watcher stopped", "error", err)
			}
		}()
	}

	// HTTP server
	handler := api.NewHandler(st, pool, checkers, enhancerCtrl)
	router := api.NewRouter(handler, cfg.IsProduction())

	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: router,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	appLogger.Info("shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}
