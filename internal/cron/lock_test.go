package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type memoryRedis struct {
	values  map[string]string
	extends int
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryRedis) CompareAndExpire(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	m.extends++
	return true, nil
}

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	a, err := NewRedisLock(store, "chama:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	b, _ := NewRedisLock(store, "chama:lock:cron", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail while held")
	}
	// a lock that never acquired must not delete the holder's key
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release b: %v", err)
	}
	if _, ok := store.values["chama:lock:cron"]; !ok {
		t.Fatal("foreign release removed the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release a: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockExtendDetectsTakeover(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "chama:lock:cron", time.Minute)

	if held, _ := lock.Extend(ctx); held {
		t.Fatal("extend before acquire must report not held")
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if held, err := lock.Extend(ctx); err != nil || !held {
		t.Fatalf("expected extend to hold, got %v %v", held, err)
	}

	// the key expired and another instance took it
	store.values["chama:lock:cron"] = "other-instance"
	if held, _ := lock.Extend(ctx); held {
		t.Fatal("expected extend to report the lease lost")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["chama:lock:cron"] != "other-instance" {
		t.Fatal("release after takeover removed the new owner's key")
	}
	if store.extends != 1 {
		t.Fatalf("expected one successful extend, got %d", store.extends)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisLock(&memoryRedis{}, "", time.Minute); err == nil {
		t.Fatal("expected error without key")
	}
	lock, err := NewRedisLock(&memoryRedis{}, "k", 0)
	if err != nil || lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v %v", lock, err)
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "sweep"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while another instance holds the lock, got %d", job.runs)
	}
}
