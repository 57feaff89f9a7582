package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/imagegen"
	"server/internal/infra"
	"server/internal/prompt"
	"server/internal/providers/genai"
	"server/internal/queue"
	"server/internal/storage"
	"server/internal/worker"
)

const dequeueTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("worker: GEMINI_API_KEY is not set, all generations will fail")
	}
	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}

	runner := imagegen.NewRunner(imagegen.BatchOptions{
		Caller:     geminiClient,
		MaxRetries: cfg.GenMaxRetries,
		Logger:     &logger,
	})
	generations := repo.NewGenerationRepository(infra.NewSQLRunner(pool, logger))
	assembler := prompt.NewAssembler(prompt.NewLibrary())
	executor := worker.NewExecutor(generations, store, assembler, runner, logger, cfg.StaleAfter)
	jobs := queue.New(redisClient, "")

	go runSweep(ctx, generations, jobs, logger, cfg)

	logger.Info().Msg("worker: started")
	for {
		requestID, err := jobs.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("worker: dequeue failed")
			time.Sleep(2 * time.Second)
			continue
		}
		if err := executor.Execute(ctx, requestID); err != nil {
			logger.Error().Err(err).Str("request_id", requestID).Msg("worker: job failed")
		}
	}
	logger.Info().Msg("worker: stopped")
}

// runSweep periodically re-enqueues requests that look abandoned: queued rows
// nobody picked up and running rows past the staleness threshold.
func runSweep(ctx context.Context, generations *repo.GenerationRepositoryPG, jobs *queue.Queue, logger infra.Logger, cfg *infra.Config) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := generations.ListStale(ctx, cfg.StaleAfter, 20)
		if err != nil {
			logger.Error().Err(err).Msg("worker: stale sweep failed")
			continue
		}
		for _, id := range ids {
			if err := jobs.Enqueue(ctx, id); err != nil {
				logger.Error().Err(err).Str("request_id", id).Msg("worker: re-enqueue failed")
				continue
			}
			logger.Warn().Str("request_id", id).Msg("worker: re-enqueued stale request")
		}
	}
}
