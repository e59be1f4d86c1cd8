// Package idempotency remembers which gateway deliveries a consumer has
// already handled, so replays can be answered without touching the database.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/redis"
)

const defaultTTL = 72 * time.Hour

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrKeyRequired      = errors.New("delivery key is required")
)

// Guard claims delivery keys under chama:idempotency:processed:<consumer>:<key>.
// The stored value is the claim time, which helps when tracing a replay.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewGuard builds a guard whose claims expire after ttl. Zero selects 72h.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Guard{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports whether this call is the first to see key for consumer.
func (g *Guard) Claim(ctx context.Context, consumer, key string) (bool, error) {
	redisKey, err := g.key(consumer, key)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, redisKey, g.now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim so a delivery that failed to settle is processed again.
func (g *Guard) Release(ctx context.Context, consumer, key string) error {
	redisKey, err := g.key(consumer, key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, redisKey)
}

func (g *Guard) key(consumer, key string) (string, error) {
	consumer, key = strings.TrimSpace(consumer), strings.TrimSpace(key)
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case key == "":
		return "", ErrKeyRequired
	}
	return g.store.IdempotencyKey("processed:"+consumer, key), nil
}
