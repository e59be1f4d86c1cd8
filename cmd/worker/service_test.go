package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type blockingPool struct {
	started chan struct{}
}

func (p *blockingPool) Run(ctx context.Context) error {
	close(p.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingPool struct {
	err error
}

func (p failingPool) Run(context.Context) error {
	return p.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger(), DB: fakePinger{}, Pool: failingPool{}}); err == nil {
		t.Fatal("expected missing config to fail")
	}
	if _, err := NewService(ServiceParams{Config: &config.Config{}, Logger: testLogger(), DB: fakePinger{}}); err == nil {
		t.Fatal("expected missing pool to fail")
	}
}

func TestRunFailsWhenDatabaseUnavailable(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		DB:     fakePinger{err: errors.New("down")},
		Pool:   failingPool{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pool := &blockingPool{started: make(chan struct{})}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		DB:     fakePinger{},
		Pool:   pool,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-pool.started:
	case <-time.After(time.Second):
		t.Fatal("pool never started")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}

func TestRunReturnsPoolError(t *testing.T) {
	boom := errors.New("boom")
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		DB:     fakePinger{},
		Pool:   failingPool{err: boom},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected pool error, got %v", err)
	}
}
