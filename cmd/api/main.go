package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/angelmondragon/teamprint-backend/api/routes"
	"github.com/angelmondragon/teamprint-backend/internal/bootstrap"
	"github.com/angelmondragon/teamprint-backend/internal/checkout"
	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	stripewebhook "github.com/angelmondragon/teamprint-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/teamprint-backend/pkg/stripe"
)

const (
	serviceName       = "api"
	webhookGuardScope = "stripe_webhook"
)

func main() {
	proc, err := bootstrap.Start(serviceName)
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := proc.Context()
	defer stop()

	if err := run(ctx, proc); err != nil {
		proc.Exit(ctx, err)
	}
	_ = proc.Close()
	proc.Logger.Info(ctx, "api.stopped")
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
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
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

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Orders:     stack.Orders,
		Sessions:   checkout.NewStripeSessions(stripeClient),
		Pricing:    checkout.PricingFromConfig(cfg.Checkout),
		Currency:   stripeClient.Currency(),
		SuccessURL: cfg.Checkout.SuccessURL(),
		CancelURL:  cfg.Checkout.CancelURL(),
		Logger:     logg,
	})
	if err != nil {
		return err
	}
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: stack.Orders, Logger: logg})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookGuardScope)
	if err != nil {
		return err
	}

	// Cloud Run injects PORT.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(routes.Params{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Idempotency:  redisClient,
			Checkout:     checkoutSvc,
			Fulfillment:  stack.Service,
			Orders:       stack.Orders,
			StripeEvents: webhookSvc,
			StripeGuard:  webhookGuard,
			StripeSigner: stripeClient,
			Metrics:      metrics.Handler(reg),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return proc.Serve(ctx, server)
}
