package cron

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) ExtendIfOwner(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != token {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != token {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func TestRedisLockExcludesSecondInstance(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "tp:lock:cron:scheduler", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "tp:lock:cron:scheduler", 0)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["tp:lock:cron:scheduler"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["tp:lock:cron:scheduler"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if _, held := store.data["tp:lock:cron:scheduler"]; !held {
		t.Fatal("non-owner release must leave the lock in place")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock free after owner release")
	}
}

func TestRedisLockDoesNotReleaseTakenOverKey(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	// Simulate expiry followed by another instance taking the key.
	store.data["k"] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "someone-else" {
		t.Fatalf("expected foreign lock intact, got %q", store.data["k"])
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", 0); err == nil {
		t.Fatal("expected key error")
	}
}

func TestRedisLockExtendTracksOwnership(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", time.Minute)

	if ok, err := lock.Extend(ctx); err != nil || ok {
		t.Fatalf("extend before acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	store.ttls["k"] = time.Second
	if ok, err := lock.Extend(ctx); err != nil || !ok {
		t.Fatalf("extend: ok=%v err=%v", ok, err)
	}
	if store.ttls["k"] != time.Minute {
		t.Fatalf("expected ttl reset to a minute, got %s", store.ttls["k"])
	}

	store.data["k"] = "someone-else"
	if ok, _ := lock.Extend(ctx); ok {
		t.Fatal("extend must fail after takeover")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "someone-else" {
		t.Fatal("lost lock must not be released")
	}
}
