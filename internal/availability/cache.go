package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"calendly/internal/events"
	"calendly/internal/metrics"
)

// CachedResolver memoises successful resolutions in Redis. Entries of an owner are
// dropped as soon as the owner's schedule, events or bookings change.
type CachedResolver struct {
	next   *Resolver
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedResolver wraps next. A nil client or non-positive ttl disables caching.
func NewCachedResolver(next *Resolver, redisClient *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedResolver {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "availability_cache").Logger()
	}
	return &CachedResolver{next: next, redis: redisClient, ttl: ttl, logger: l}
}

func (c *CachedResolver) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func resultKey(req Request) string {
	return fmt.Sprintf("availability:%s:%s:%s:%s", req.OwnerID, req.EventID, req.Dates, req.Timezone)
}

func ownerKey(ownerID string) string {
	return "availability:owner:" + ownerID
}

// Resolve answers from the cache when possible. Slots that slipped behind the lead
// time since caching are removed on the way out.
func (c *CachedResolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if !c.enabled() {
		return c.next.Resolve(ctx, req)
	}

	key := resultKey(req)
	if res, ok := c.read(ctx, key); ok {
		metrics.IncCacheLookup("hit")
		return c.refresh(res, req.Timezone), nil
	}
	metrics.IncCacheLookup("miss")

	res, err := c.next.Resolve(ctx, req)
	if err != nil || res.Reason != ReasonNone {
		return res, err
	}
	c.write(ctx, req.OwnerID, key, res)
	return res, nil
}

// IsBookable always resolves fresh.
func (c *CachedResolver) IsBookable(ctx context.Context, req Request, start time.Time) (bool, error) {
	return c.next.IsBookable(ctx, req, start)
}

// Invalidate drops every cached resolution of the owner.
func (c *CachedResolver) Invalidate(ctx context.Context, ownerID string) error {
	if !c.enabled() {
		return nil
	}
	idx := ownerKey(ownerID)
	keys, err := c.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("list cached keys: %w", err)
	}
	keys = append(keys, idx)
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop cached keys: %w", err)
	}
	c.logger.Debug().Str("owner_id", ownerID).Int("keys", len(keys)-1).Msg("availability cache invalidated")
	return nil
}

// Subscribe invalidates the owner's entries on every availability-changing event.
func (c *CachedResolver) Subscribe(bus *events.EventBus) {
	for _, t := range events.AllTypes {
		bus.Subscribe(t, func(e events.Event) error {
			return c.Invalidate(context.Background(), e.OwnerID)
		})
	}
}

func (c *CachedResolver) refresh(res *Result, tz string) *Result {
	loc, err := LoadVisitorLocation(tz)
	if err != nil {
		return res
	}
	cutoff := c.next.notBefore()
	slots := make([]Slot, 0, len(res.Slots))
	for _, s := range res.Slots {
		if s.Start.Before(cutoff) {
			continue
		}
		slots = append(slots, Slot{Start: s.Start.UTC(), Local: s.Start.In(loc)})
	}
	res.Slots = slots
	return res
}

func (c *CachedResolver) read(ctx context.Context, key string) (*Result, bool) {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *CachedResolver) write(ctx context.Context, ownerID, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	idx := ownerKey(ownerID)
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache availability")
	}
}
