package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/turkicnlp/corpusd/internal/api"
	"github.com/turkicnlp/corpusd/internal/config"
	"github.com/turkicnlp/corpusd/internal/job"
	"github.com/turkicnlp/corpusd/internal/lifecycle"
	"github.com/turkicnlp/corpusd/internal/metrics"
	"github.com/turkicnlp/corpusd/internal/pipeline"
	"github.com/turkicnlp/corpusd/internal/queue"
	"github.com/turkicnlp/corpusd/internal/results"
	"github.com/turkicnlp/corpusd/internal/sweep"
	"github.com/turkicnlp/corpusd/internal/upload"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Optional .env for local development; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	store, err := job.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	collector := metrics.NewCollector()
	resultStore := results.NewStore(cfg.DataDir)
	proc := pipeline.New(pipeline.NewLocalCorpus(cfg.DataDir))
	uploader := upload.NewClient(cfg.UploadURL, cfg.UploadAPIKey, cfg.UploadTimeout)
	emitter := &lifecycle.SlogEmitter{Logger: slog.Default()}

	controller := lifecycle.NewController(store, proc, uploader, resultStore, emitter, cfg.StrictUpload)
	controller.SetMetrics(collector)

	q := queue.New(store, controller, cfg.QueueSize, cfg.Concurrency)

	if err := q.Recovery(context.Background()); err != nil {
		slog.Error("recovery", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	sweeper := sweep.New(store, q, cfg.StaleAfter)
	if err := sweeper.Start(ctx, cfg.SweepSpec); err != nil {
		slog.Error("sweep", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	mux := http.NewServeMux()
	h := api.NewHandler(store, q, resultStore, collector, cfg.DataDir)
	h.RegisterRoutes(mux)
	mux.Handle("GET /metrics", collector.Handler())

	handler := api.CORSMiddleware(cfg.CORSOrigins,
		api.RequestIDMiddleware(
			api.LoggingMiddleware(
				api.RateLimitMiddleware(cfg.RateLimit,
					api.AuthMiddleware(cfg.APIKeys, mux)))))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("corpusd listening", "addr", cfg.ListenAddr, "strict_upload", cfg.StrictUpload)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	q.Wait()
}
