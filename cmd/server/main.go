package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/analysis"
	"github.com/Skufu/pneumoscan/internal/api"
	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/blob"
	"github.com/Skufu/pneumoscan/internal/config"
	"github.com/Skufu/pneumoscan/internal/diagnosis"
	"github.com/Skufu/pneumoscan/internal/diagnosis/tflite"
	"github.com/Skufu/pneumoscan/internal/logging"
	"github.com/Skufu/pneumoscan/internal/metrics"
	"github.com/Skufu/pneumoscan/internal/store"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

const serviceName = "pneumoscan"

var version = "dev"

type HealthChecker interface {
	Ping(ctx context.Context) error
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Chest X-ray pneumonia screening API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newPredictCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	gin.SetMode(cfg.GinMode)

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	output, err := diagnosis.ParseOutputKind(cfg.ModelOutput)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	var predictor diagnosis.Predictor
	if p, err := tflite.Load(cfg.ModelPath, cfg.ModelThreads, logger); err != nil {
		logger.Error("classifier model not loaded, predictions will fail",
			zap.String("path", cfg.ModelPath), zap.Error(err))
	} else {
		predictor = p
		defer p.Close()
	}
	diag := diagnosis.NewService(predictor, output, m)

	deps := api.Deps{
		Recorder:          m,
		Logger:            logger,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		PredictRatePerMin: cfg.PredictRatePerMin,
	}
	orchOpts := analysis.Options{Diagnoser: diag, Recorder: m, Logger: logger}
	checks := map[string]HealthChecker{}

	if cfg.StorageEnabled() {
		blobs := blob.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket, logger)
		orchOpts.Blobs = blobs
		checks["storage"] = blobs
	}

	if cfg.EnableDB {
		if cfg.MigrateOnStart {
			if err := store.MigrateUp(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		st := store.New(pool)
		checks["db"] = st

		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return err
		}
		assessor := vulnerability.NewAssessor(st, logger)

		orchOpts.Analyses = st
		orchOpts.Assessor = assessor
		deps.Persons = st
		deps.Tokens = tokens
		deps.Assessor = assessor
	}
	deps.Analyzer = analysis.New(orchOpts)

	router, err := setupRouter(routerOptions{
		Handler:        api.NewHandler(deps),
		Checks:         checks,
		ModelReady:     diag.Ready,
		Gatherer:       registry,
		Origins:        cfg.CORSOrigins,
		MaxBody:        cfg.MaxUploadBytes + 1<<20,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("server listening",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
		zap.Bool("db", cfg.EnableDB),
		zap.Bool("model_loaded", diag.Ready()))
	return waitForShutdown(server, errCh, logger)
}

func waitForShutdown(server *http.Server, errCh <-chan error, logger *zap.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-stop:
	}

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
