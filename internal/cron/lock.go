package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock elects the instance that runs a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseLock is a Lock whose hold can be renewed while a cycle is still
// running.
type leaseLock interface {
	Lock
	Extend(ctx context.Context) (bool, error)
	TTL() time.Duration
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendIfOwner(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
}

var errLockLost = errors.New("cron lock lost")

// RedisLock stores a fresh owner token on every acquisition. Extend and
// Release only touch the key while it still carries that token.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis store required for cron lock")
	case key == "":
		return nil, errors.New("cron lock key required")
	case ttl <= 0:
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.setToken(token)
	}
	return ok, nil
}

// Extend renews the hold for another TTL. It reports false once the key has
// expired or been taken by someone else.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	token := l.currentToken()
	if token == "" {
		return false, nil
	}
	ok, err := l.store.ExtendIfOwner(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.setToken("")
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	token := l.currentToken()
	l.setToken("")
	if token == "" {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) currentToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

func (l *RedisLock) setToken(token string) {
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
}
