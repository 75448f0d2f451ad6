package conflicts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"calendly/internal/interval"
)

// CachedSource keeps answers of a slow source in Redis for a short TTL.
// Failures are never cached.
type CachedSource struct {
	next  Source
	redis *redis.Client
	ttl   time.Duration
}

type cachedBusy struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewCachedSource wraps next. A nil client or non-positive ttl disables caching.
func NewCachedSource(next Source, redisClient *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, redis: redisClient, ttl: ttl}
}

func (c *CachedSource) Name() string { return c.next.Name() }

// ListBusyIntervals returns the cached answer for the exact window or asks next.
func (c *CachedSource) ListBusyIntervals(ctx context.Context, ownerID string, window Busy) ([]Busy, error) {
	key := fmt.Sprintf("busy:%s:%s:%d:%d", c.next.Name(), ownerID, window.Start.Unix(), window.End.Unix())

	var cached []cachedBusy
	if c.readCache(ctx, key, &cached) {
		out := make([]Busy, 0, len(cached))
		for _, b := range cached {
			out = append(out, interval.New(b.Start, b.End))
		}
		return out, nil
	}

	busy, err := c.next.ListBusyIntervals(ctx, ownerID, window)
	if err != nil {
		return nil, err
	}

	toCache := make([]cachedBusy, 0, len(busy))
	for _, b := range busy {
		toCache = append(toCache, cachedBusy{Start: b.Start.UTC(), End: b.End.UTC()})
	}
	c.writeCache(ctx, key, toCache)
	return busy, nil
}

func (c *CachedSource) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *CachedSource) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}
