package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reachflow/internal/jobs"
	"reachflow/platform/config"
	"reachflow/platform/db"
	"reachflow/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// staleRunningHorizon is how long a job may sit in running before the sweep
// fails it. Generous compared to the provider timeout so in-flight work is
// never clobbered.
const staleRunningHorizon = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = db.NewPool(ctx, cfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	if pool == nil {
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := jobs.RedisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("invalid redis configuration", "error", err)
		panic("invalid redis configuration: " + err.Error())
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	gateway := jobs.NewRemoteGateway(pool, client, cfg.GetAsynqQueueName(), log)

	provider := jobs.NewHTTPProvider(cfg.GetProviderBaseURL(), cfg.GetProviderAPIKey())
	worker, err := jobs.NewWorker(cfg, gateway, provider, provider, provider, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	// Sweep jobs stranded in running by a crashed worker so their leads can
	// be retried.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := gateway.FailStaleRunning(ctx, staleRunningHorizon)
				if err != nil {
					log.Error("stale job sweep failed", "error", err)
					continue
				}
				if n > 0 {
					log.Warn("failed stale running jobs", "count", n)
				}
			}
		}
	}()

	worker.Run(ctx)
	log.Info("worker stopped")
}
