package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wespeak/backend/internal/config"
	"github.com/wespeak/backend/internal/db"
	httpapi "github.com/wespeak/backend/internal/http"
	"github.com/wespeak/backend/internal/sentiment"
	"github.com/wespeak/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "wespeak-backend").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var scorer sentiment.Scorer
	if cfg.SentimentURL == "" {
		scorer = sentiment.VaderScorer{}
		logger.Info().Msg("using built-in vader sentiment scorer")
	} else {
		scorer = sentiment.HTTPScorer{BaseURL: cfg.SentimentURL}
	}

	statsService := &service.StatsService{
		Orgs:             store,
		Complaints:       store,
		Sentiment:        scorer,
		Logger:           logger,
		CrisisExponent:   cfg.CrisisExponent,
		CrisisPopulation: cfg.CrisisPopulation,
		EpochYear:        cfg.EpochYear,
		FoldOnReopen:     cfg.FoldOnReopen,
		ConflictRetries:  cfg.ConflictRetries,
	}

	sweep := &service.SweepJob{
		Service:  statsService,
		Store:    store,
		Logger:   logger,
		Interval: cfg.SweepInterval,
		Workers:  cfg.SweepWorkers,
	}
	go sweep.Start(ctx)

	router := httpapi.Router(cfg, store, statsService, sweep, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
