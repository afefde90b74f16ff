package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/teamprint-backend/internal/bootstrap"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	proc, err := bootstrap.Start(serviceName)
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := proc.Context()
	defer stop()

	if err := run(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
		proc.Exit(ctx, err)
	}
	_ = proc.Close()
	proc.Logger.Info(ctx, "outbox.publisher_exited")
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	dbClient, err := proc.OpenDB(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := proc.OpenPubSub(ctx)
	if err != nil {
		return err
	}
	events, err := registry.NewEventRegistry(proc.Config.PubSub)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	proc.ServeMetrics(ctx, reg)
	service, err := NewService(ServiceParams{
		Config:     proc.Config,
		Logger:     proc.Logger,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   events,
		Metrics:    metrics.NewOutboxMetrics(reg),
	})
	if err != nil {
		return err
	}
	proc.Logger.Info(ctx, "outbox.publisher_starting")
	return service.Run(ctx)
}
