package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roastkit/internal/config"
	"roastkit/internal/infra"
	"roastkit/internal/repository"
	"roastkit/internal/router"
	"roastkit/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger. dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := infra.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Photos are optional: without storage credentials finish-with-photo
	// answers 502 and sack photos are skipped.
	var (
		store   infra.ObjectStore
		breaker *infra.Breaker
	)
	if cfg.StorageEnabled() {
		breaker = infra.NewBreaker(infra.BreakerConfig{Name: "object-storage"})
		store = infra.NewSupabaseStore(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket, breaker)
	} else {
		log.Warn().Msg("STORAGE_URL / STORAGE_SERVICE_KEY not set, photo uploads disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker handlers are wired here (composition root) so the pool has
	// access to every infrastructure dependency.
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)
	batchRepo := repository.NewBatchRepository(db)
	varietyRepo := repository.NewVarietyRepository(db)

	pool := worker.NewPool(rdb, map[string]worker.Handler{
		worker.JobRoastReport: worker.NewRoastReportWorker(batchRepo, dispatcher, cfg.ReportStoragePath, cfg.QCNotifyEmail),
		worker.JobEmail:       worker.NewEmailWorker(mailer),
	})
	pool.Start(ctx, cfg.WorkerPoolSize)

	alerts := worker.NewAlertScheduler(worker.AlertConfig{
		Varieties:     varietyRepo,
		Batches:       batchRepo,
		Dispatcher:    dispatcher,
		NotifyEmail:   cfg.QCNotifyEmail,
		LowStockGrams: cfg.LowStockGrams,
		StaleAfter:    time.Duration(cfg.StaleRoastHours) * time.Hour,
	})
	if err := alerts.Start(ctx, cfg.AlertCron); err != nil {
		log.Fatal().Err(err).Msg("failed to start alert scheduler")
	}

	r := router.New(router.Deps{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		Store:      store,
		Breaker:    breaker,
		Dispatcher: dispatcher,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second, // multipart photo uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("roastkit API listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
	log.Info().Msg("server exited")
}
