package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultRetryGrace      = 5 * time.Minute
	defaultRetryBatchSize  = 25
	defaultRetryAttempts   = 8
	defaultAttemptCountTTL = 7 * 24 * time.Hour
)

type retryableOrders interface {
	ListRetryable(ctx context.Context, paidBefore time.Time, limit int) ([]models.CustomerOrder, error)
	RecordFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) error
}

type orderFulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID) (*fulfillment.Result, error)
}

type attemptCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	AttemptCounterKey(orderID string) string
}

type FulfillmentRetryJobParams struct {
	Logger      *logger.Logger
	Orders      retryableOrders
	Fulfiller   orderFulfiller
	Counter     attemptCounter
	Grace       time.Duration
	BatchSize   int
	MaxAttempts int
	CounterTTL  time.Duration
}

// NewFulfillmentRetryJob re-drives paid orders that never received a
// provider reference, covering lost events and transient provider outages.
// Orders that exhaust their attempts are parked in fulfillment_error.
func NewFulfillmentRetryJob(params FulfillmentRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders required")
	}
	if params.Fulfiller == nil {
		return nil, fmt.Errorf("fulfiller required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("attempt counter required")
	}
	job := &fulfillmentRetryJob{
		logg:        params.Logger,
		orders:      params.Orders,
		fulfiller:   params.Fulfiller,
		counter:     params.Counter,
		grace:       params.Grace,
		batch:       params.BatchSize,
		maxAttempts: params.MaxAttempts,
		counterTTL:  params.CounterTTL,
		now:         time.Now,
	}
	if job.grace <= 0 {
		job.grace = defaultRetryGrace
	}
	if job.batch <= 0 {
		job.batch = defaultRetryBatchSize
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = defaultRetryAttempts
	}
	if job.counterTTL <= 0 {
		job.counterTTL = defaultAttemptCountTTL
	}
	return job, nil
}

type fulfillmentRetryJob struct {
	logg        *logger.Logger
	orders      retryableOrders
	fulfiller   orderFulfiller
	counter     attemptCounter
	grace       time.Duration
	batch       int
	maxAttempts int
	counterTTL  time.Duration
	now         func() time.Time
}

func (j *fulfillmentRetryJob) Name() string { return "fulfillment-retry" }

func (j *fulfillmentRetryJob) Run(ctx context.Context) error {
	// The grace period leaves fresh orders to the event consumer.
	paidBefore := j.now().UTC().Add(-j.grace)
	pending, err := j.orders.ListRetryable(ctx, paidBefore, j.batch)
	if err != nil {
		return err
	}

	var (
		errs                       error
		fulfilled, deferred, given int
	)
	for _, order := range pending {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		attempt, err := j.counter.IncrWithTTL(orderCtx, j.counter.AttemptCounterKey(order.ID.String()), j.counterTTL)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: attempt counter: %w", order.ID, err))
			continue
		}
		if attempt > int64(j.maxAttempts) {
			given++
			diagnostic := fmt.Sprintf("fulfillment retry limit reached after %d attempts", j.maxAttempts)
			if err := j.orders.RecordFulfillmentError(orderCtx, order.ID, diagnostic); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: park: %w", order.ID, err))
				continue
			}
			j.logg.Warn(j.logg.WithField(orderCtx, "attempts", attempt-1), "cron.fulfillment_retry_exhausted")
			continue
		}

		res, err := j.fulfiller.Fulfill(orderCtx, order.ID)
		switch {
		case err == nil:
			if res.Succeeded() {
				fulfilled++
			}
		case pkgerrors.CodeOf(err) == pkgerrors.CodeDependency:
			deferred++
		case pkgerrors.CodeOf(err) == pkgerrors.CodeProviderRejected:
			// Already written to the order as a diagnostic.
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(pending),
		"fulfilled":  fulfilled,
		"deferred":   deferred,
		"exhausted":  given,
	}), "cron.fulfillment_retry_complete")
	return errs
}
