package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/teamprint-backend/internal/bootstrap"
	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/registry"
)

const serviceName = "worker"

func main() {
	proc, err := bootstrap.Start(serviceName)
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := proc.Context()
	defer stop()
	ctx = proc.Logger.WithField(ctx, "subscription", proc.Config.PubSub.OrdersSubscription)

	if err := run(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
		proc.Exit(ctx, err)
	}
	_ = proc.Close()
	proc.Logger.Info(ctx, "worker.stopped")
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
	pubsubClient, err := proc.OpenPubSub(ctx)
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

	markers, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return err
	}
	consumer, err := fulfillment.NewConsumer(fulfillment.ConsumerParams{
		Subscription: pubsubClient.OrdersSubscription(),
		Guard:        markers,
		Decoders:     registry.NewOrderDecoders(),
		Fulfiller:    stack.Service,
		Logger:       logg,
	})
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Deps: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Consumer: consumer,
	})
	if err != nil {
		return err
	}
	logg.Info(ctx, "worker.starting")
	return service.Run(ctx)
}
