package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds the short-lived per-unit locks that arbitrate concurrent
// deposit bookings. A lock key lives as long as the booking may stay
// unpaid; the durable inventory is the ledger's booked units.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// LockUnit takes the unit for the user. First caller wins; a retry by
// the same user (abandoned checkout, new payment attempt) succeeds.
func (c *Cache) LockUnit(ctx context.Context, propertyID uuid.UUID, unit string, userID uuid.UUID, ttl time.Duration) (bool, error) {
	key := "unit:" + propertyID.String() + ":" + unit
	ok, err := c.client.SetNX(ctx, key, userID.String(), ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	owner, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Lock expired between SetNX and Get, try again.
		return c.client.SetNX(ctx, key, userID.String(), ttl).Result()
	}
	if err != nil {
		return false, err
	}
	return owner == userID.String(), nil
}

// ReleaseUnits drops the lock keys for a retired booking so the units
// become contestable immediately instead of at key expiry.
func (c *Cache) ReleaseUnits(ctx context.Context, propertyID uuid.UUID, units []string) error {
	if len(units) == 0 {
		return nil
	}
	keys := make([]string, 0, len(units))
	for _, unit := range units {
		keys = append(keys, "unit:"+propertyID.String()+":"+unit)
	}
	return c.client.Del(ctx, keys...).Err()
}
