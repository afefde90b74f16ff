package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMemoTTL = 7 * 24 * time.Hour

type memoStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ProductMemoKey(orderID string) string
	OrderMemoKey(orderID string) string
}

// memo remembers provider ids that exist remotely but may not be stored on
// the order row yet: products created by a partially failed two-phase
// submission, and orders whose reference write failed.
type memo struct {
	store memoStore
	ttl   time.Duration
}

func newMemo(store memoStore, ttl time.Duration) *memo {
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	return &memo{store: store, ttl: ttl}
}

func (m *memo) products(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]string, error) {
	out := map[uuid.UUID]string{}
	if m == nil || m.store == nil {
		return out, nil
	}
	raw, err := m.store.Get(ctx, m.store.ProductMemoKey(orderID.String()))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[uuid.UUID]string{}, err
	}
	return out, nil
}

func (m *memo) rememberProducts(ctx context.Context, orderID uuid.UUID, products map[uuid.UUID]string) error {
	if m == nil || m.store == nil || len(products) == 0 {
		return nil
	}
	payload, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.store.ProductMemoKey(orderID.String()), string(payload), m.ttl)
}

func (m *memo) providerOrder(ctx context.Context, orderID uuid.UUID) (string, error) {
	if m == nil || m.store == nil {
		return "", nil
	}
	ref, err := m.store.Get(ctx, m.store.OrderMemoKey(orderID.String()))
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return ref, err
}

func (m *memo) rememberProviderOrder(ctx context.Context, orderID uuid.UUID, reference string) error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Set(ctx, m.store.OrderMemoKey(orderID.String()), reference, m.ttl)
}

func (m *memo) forget(ctx context.Context, orderID uuid.UUID) error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Del(ctx, m.store.ProductMemoKey(orderID.String()), m.store.OrderMemoKey(orderID.String()))
}
