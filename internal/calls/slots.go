package calls

import (
	"context"
	"time"

	"ai-receptionist/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// SlotLimiter caps concurrent live calls per tenant.
type SlotLimiter interface {
	Acquire(ctx context.Context, tenantID, callID string) (bool, error)
	Release(ctx context.Context, tenantID, callID string) error
}

// RedisSlots keeps live call ids in a per-tenant sorted set.
// Slots older than TTL are evicted on the next acquire.
type RedisSlots struct {
	RDB   *redis.Client
	Limit int
	TTL   time.Duration
	Now   func() time.Time
}

// NewRedisSlots returns nil when the cap is disabled (no client or limit <= 0).
func NewRedisSlots(rdb *redis.Client, limit int, ttl time.Duration) SlotLimiter {
	if rdb == nil || limit <= 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSlots{RDB: rdb, Limit: limit, TTL: ttl, Now: time.Now}
}

func (s *RedisSlots) Acquire(ctx context.Context, tenantID, callID string) (bool, error) {
	return utils.AcquireCallSlot(ctx, s.RDB, tenantID, callID, s.Limit, s.TTL, s.Now())
}

func (s *RedisSlots) Release(ctx context.Context, tenantID, callID string) error {
	return utils.ReleaseCallSlot(ctx, s.RDB, tenantID, callID)
}
