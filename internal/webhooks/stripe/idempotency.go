package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/teamprint-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/teamprint-backend/pkg/redis"
)

// IdempotencyGuard makes a redelivered Stripe event a no-op. It shares the
// marker layout used by the Pub/Sub consumers, scoped by name.
type IdempotencyGuard struct {
	markers *idempotency.Manager
	scope   string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if scope == "" {
		return nil, errors.New("stripe webhook guard scope is required")
	}
	markers, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{markers: markers, scope: scope}, nil
}

// CheckAndMark reports whether eventID was already seen, claiming it if not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	claimed, err := g.markers.Claim(ctx, g.scope, eventID)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases the claim after a failed handler run.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	return g.markers.Release(ctx, g.scope, eventID)
}
