package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

const (
	defaultLockTTL  = 2 * time.Minute
	defaultLockWait = 10 * time.Second
	lockPollEvery   = 100 * time.Millisecond
)

// ErrLockBusy is returned when another worker keeps the order lock past the
// wait budget.
var ErrLockBusy = errors.New("fulfillment already in progress for order")

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
	ExtendIfOwner(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	FulfillmentLockKey(orderID string) string
}

// OrderLocker serializes fulfillment attempts per order with a Redis key that
// holds a random owner token. A held lock is extended every third of its TTL
// until released.
type OrderLocker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
	renew time.Duration
	logg  *logger.Logger
}

func NewOrderLocker(store lockStore, ttl, wait time.Duration, logg *logger.Logger) *OrderLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait < 0 {
		wait = defaultLockWait
	}
	return &OrderLocker{store: store, ttl: ttl, wait: wait, poll: lockPollEvery, renew: ttl / 3, logg: logg}
}

// Acquire blocks until the lock for orderID is held, the wait budget is
// spent, or ctx ends. The returned func releases the lock only while this
// caller still owns it.
func (l *OrderLocker) Acquire(ctx context.Context, orderID uuid.UUID) (func(), error) {
	key := l.store.FulfillmentLockKey(orderID.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			stop, renewed := l.keepAlive(ctx, key, token)
			return func() {
				stop()
				<-renewed
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if _, err := l.store.ReleaseIfOwner(releaseCtx, key, token); err != nil {
					l.logg.Error(ctx, "fulfillment.lock_release_failed", err)
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockBusy
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// keepAlive extends the lock until stop is called or ownership is lost. The
// returned channel closes once the renewer has exited.
func (l *OrderLocker) keepAlive(ctx context.Context, key, token string) (context.CancelFunc, <-chan struct{}) {
	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	if l.renew <= 0 {
		close(done)
		return stop, done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.renew)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
			}
			held, err := l.store.ExtendIfOwner(renewCtx, key, token, l.ttl)
			if renewCtx.Err() != nil {
				return
			}
			if err != nil {
				l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "fulfillment.lock_extend_failed")
				continue
			}
			if !held {
				l.logg.Warn(ctx, "fulfillment.lock_lost")
				return
			}
		}
	}()
	return stop, done
}
