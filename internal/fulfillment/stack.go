package fulfillment

import (
	"fmt"

	"github.com/angelmondragon/teamprint-backend/internal/catalog"
	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
	"github.com/angelmondragon/teamprint-backend/pkg/redis"
)

// Dependencies are the process-wide clients every binary that fulfills
// orders already holds.
type Dependencies struct {
	Config  *config.Config
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.FulfillmentMetrics
	Logger  *logger.Logger
}

// Stack is the order state machine plus the orchestrator built on top of it.
type Stack struct {
	Orders   orders.Service
	Provider *printify.Client
	Resolver *catalog.Resolver
	Service  *Service
}

// NewStack wires orders, catalog and the Printify client into a fulfillment
// service. The api, worker and cron binaries share it.
func NewStack(deps Dependencies) (*Stack, error) {
	if deps.Config == nil || deps.DB == nil || deps.Redis == nil {
		return nil, fmt.Errorf("config, database and redis are required")
	}
	cfg := deps.Config

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(deps.DB.DB()),
		Tx:       deps.DB,
		Outbox:   outbox.NewService(outbox.NewRepository(deps.DB.DB()), deps.Logger),
		Attempts: deps.Redis,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	opts := []printify.Option{
		printify.WithBaseURL(cfg.Printify.BaseURL),
		printify.WithShopID(cfg.Printify.ShopID),
		printify.WithTimeout(cfg.Printify.Timeout),
	}
	var recorder outcomeRecorder
	if deps.Metrics != nil {
		opts = append(opts, printify.WithRequestObserver(deps.Metrics))
		recorder = deps.Metrics
	}
	provider := printify.NewClient(cfg.Printify.APIToken, opts...)

	resolver, err := catalog.NewResolver(catalog.ResolverParams{
		Source:   provider,
		Cache:    deps.Redis,
		CacheTTL: cfg.Catalog.CacheTTL,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog resolver: %w", err)
	}

	svc, err := NewService(ServiceParams{
		Orders:   orderSvc,
		Resolver: resolver,
		Provider: provider,
		Locker:   NewOrderLocker(deps.Redis, cfg.Fulfillment.LockTTL, cfg.Fulfillment.LockWait, deps.Logger),
		Memo:     deps.Redis,
		MemoTTL:  cfg.Fulfillment.ProductMemoTTL,
		Mode:     Mode(cfg.Printify.Mode),
		Metrics:  recorder,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment service: %w", err)
	}

	return &Stack{Orders: orderSvc, Provider: provider, Resolver: resolver, Service: svc}, nil
}
