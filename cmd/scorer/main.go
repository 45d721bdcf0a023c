package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/nzx-scorer/internal/api"
	"github.com/trogers1052/nzx-scorer/internal/cache"
	"github.com/trogers1052/nzx-scorer/internal/config"
	"github.com/trogers1052/nzx-scorer/internal/database"
	"github.com/trogers1052/nzx-scorer/internal/delivery"
	"github.com/trogers1052/nzx-scorer/internal/kafka"
	"github.com/trogers1052/nzx-scorer/internal/logging"
	"github.com/trogers1052/nzx-scorer/internal/models"
	"github.com/trogers1052/nzx-scorer/internal/pipeline"
	"github.com/trogers1052/nzx-scorer/internal/scoring"
)

func main() {
	os.Exit(run())
}

func run() int {
	batchFile := flag.String("batch", "", "score a single scrape batch from this JSON file and exit")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	policy, err := scoring.ParseRangePolicy(cfg.Scoring.RangePolicy)
	if err != nil {
		log.Error().Err(err).Msg("invalid range policy")
		return 1
	}
	opts := scoring.Options{Policy: policy, IsolateFailures: cfg.Scoring.IsolateFailures}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return 1
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		log.Error().Err(err).Msg("failed to migrate database")
		return 1
	}

	redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to redis")
		return 1
	}
	defer redisClient.Close()
	c := cache.New(redisClient, cfg.Redis.CacheTTL, cfg.Redis.LockTTL, log)

	var publisher pipeline.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ScoreTopic)
		defer producer.Close()
		publisher = producer
	}

	runner := pipeline.NewRunner(
		scoring.NewScorer(opts, log),
		db,
		c,
		delivery.NewHTTPSink(cfg.Delivery, log),
		publisher,
		log,
	)
	runner.SetRetention(cfg.Database.Retention)

	if *batchFile != "" {
		return runOnce(ctx, runner, *batchFile, log)
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ScrapeTopic, cfg.Kafka.GroupID, db, runner, log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	handler := api.NewHandler(db, c, opts, log)
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.WithMiddleware(api.SetupRoutes(handler), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("nzx-scorer shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
		return 1
	}
	return 0
}

// runOnce scores one batch file and returns the process exit code
func runOnce(ctx context.Context, runner *pipeline.Runner, path string, log zerolog.Logger) int {
	batch, err := pipeline.NewFileSource(path).Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load batch")
		return 1
	}

	result, err := runner.Run(ctx, batch)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return 1
	}
	if result.Status == models.StatusFailed {
		return 1
	}
	log.Info().Str("run_id", result.RunID).Str("status", result.Status).Msg("batch scored")
	return 0
}
