// Package idempotency records which consumer has already handled an event.
// Event ids are opaque, so outbox envelope uuids and Stripe evt_ ids share
// the same markers.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/teamprint-backend/pkg/redis"
)

var (
	ErrNoStore       = errors.New("idempotency: store is required")
	ErrNegativeTTL   = errors.New("idempotency: ttl must not be negative")
	ErrEmptyConsumer = errors.New("idempotency: consumer is required")
	ErrEmptyEventID  = errors.New("idempotency: event id is required")
)

// Manager stores one marker per (consumer, event id) with a TTL.
// Markers live under tp:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if ttl < 0 {
		return nil, ErrNegativeTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim writes the marker for eventID. It returns false when an earlier
// delivery already holds it.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := markerKey(m.store, consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency: claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release drops the marker so the next delivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := markerKey(m.store, consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func markerKey(store redis.IdempotencyStore, consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", ErrEmptyConsumer
	case eventID == "":
		return "", ErrEmptyEventID
	}
	return store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
