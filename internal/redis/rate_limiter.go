package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmitLimiter throttles task submissions per client using a sliding-window
// count in Redis. Shared across hub replicas because the window lives in
// Redis, not in process memory.
type SubmitLimiter interface {
	Allow(ctx context.Context, client string) (bool, error)
	Limit() int
}

type submitLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewSubmitLimiter returns a Redis-backed sliding-window limiter allowing at
// most limit submissions per client per window.
func NewSubmitLimiter(client *redis.Client, limit int, window time.Duration) SubmitLimiter {
	return &submitLimiter{client: client, limit: limit, window: window}
}

func (l *submitLimiter) Limit() int { return l.limit }

// Allow records one submission for the client and reports whether it stays
// within the window. A sorted set of nanosecond timestamps is the window.
func (l *submitLimiter) Allow(ctx context.Context, client string) (bool, error) {
	now := time.Now().UnixNano()
	cutoff := now - l.window.Nanoseconds()
	key := "tradinghub:submits:" + client

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("submit limiter pipeline for %q: %w", client, err)
	}
	return countCmd.Val() <= int64(l.limit), nil
}
