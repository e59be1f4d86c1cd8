package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	deleted []string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "chama:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func TestGuardClaimsOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, 12*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	guard.now = func() time.Time { return time.Date(2026, 2, 3, 7, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := guard.Claim(ctx, "callback-stk", " ws_CO_191220191020363925:0 ")
	if err != nil || !first {
		t.Fatalf("expected first claim, got %v %v", first, err)
	}
	again, err := guard.Claim(ctx, "callback-stk", "ws_CO_191220191020363925:0")
	if err != nil || again {
		t.Fatalf("expected replay to lose the claim, got %v %v", again, err)
	}

	key := "chama:idempotency:processed:callback-stk:ws_CO_191220191020363925:0"
	if store.values[key] != "2026-02-03T07:30:00Z" {
		t.Fatalf("unexpected claim value %q", store.values[key])
	}
	if store.ttls[key] != 12*time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttls[key])
	}

	other, err := guard.Claim(ctx, "callback-b2c", "ws_CO_191220191020363925:0")
	if err != nil || !other {
		t.Fatalf("consumers must not share claims, got %v %v", other, err)
	}
}

func TestGuardReleaseAllowsReprocessing(t *testing.T) {
	store := newMemoryStore()
	guard, _ := NewGuard(store, 0)
	ctx := context.Background()

	if _, err := guard.Claim(ctx, "callback-b2c", "conv-1:0"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := guard.Release(ctx, "callback-b2c", "conv-1:0"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "chama:idempotency:processed:callback-b2c:conv-1:0" {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
	claimed, err := guard.Claim(ctx, "callback-b2c", "conv-1:0")
	if err != nil || !claimed {
		t.Fatalf("expected claim after release, got %v %v", claimed, err)
	}
	if guard.ttl != defaultTTL {
		t.Fatalf("zero ttl should default, got %v", guard.ttl)
	}
}

func TestGuardErrors(t *testing.T) {
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewGuard(newMemoryStore(), -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}

	store := newMemoryStore()
	guard, _ := NewGuard(store, time.Hour)
	ctx := context.Background()
	if _, err := guard.Claim(ctx, "callback-stk", "  "); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired, got %v", err)
	}
	if err := guard.Release(ctx, "", "abc"); !errors.Is(err, ErrConsumerRequired) {
		t.Fatalf("expected ErrConsumerRequired, got %v", err)
	}
	store.err = errors.New("redis down")
	if _, err := guard.Claim(ctx, "callback-stk", "abc"); err == nil {
		t.Fatal("expected store error")
	}
}
