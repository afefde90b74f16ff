package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/teamprint-backend/internal/bootstrap"
	"github.com/angelmondragon/teamprint-backend/internal/cron"
	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
)

const (
	serviceName  = "cron-worker"
	schedulerKey = "scheduler"
)

func main() {
	proc, err := bootstrap.Start(serviceName)
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := proc.Context()
	defer stop()
	ctx = proc.Logger.WithField(ctx, "interval", proc.Config.Fulfillment.RetryInterval.String())

	if err := run(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
		proc.Exit(ctx, err)
	}
	_ = proc.Close()
	proc.Logger.Info(ctx, "cron.worker_stopped")
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.OpenDB(ctx)
	if err != nil {
		return err
	}
	redisClient, err := proc.OpenRedis(ctx)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	proc.ServeMetrics(ctx, reg)
	stack, err := fulfillment.NewStack(fulfillment.Dependencies{
		Config:  cfg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: metrics.NewFulfillmentMetrics(reg),
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	retryJob, err := cron.NewFulfillmentRetryJob(cron.FulfillmentRetryJobParams{
		Logger:      logg,
		Orders:      stack.Orders,
		Fulfiller:   stack.Service,
		Counter:     redisClient,
		Grace:       cfg.Fulfillment.RetryGrace,
		BatchSize:   cfg.Fulfillment.RetryBatchSize,
		MaxAttempts: cfg.Fulfillment.MaxAttempts,
		CounterTTL:  cfg.Cron.AttemptCounterTTL,
	})
	if err != nil {
		return err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(schedulerKey), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{retryJob, retentionJob},
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Fulfillment.RetryInterval,
	})
	if err != nil {
		return err
	}
	logg.Info(ctx, "cron.worker_starting")
	return service.Run(ctx)
}
