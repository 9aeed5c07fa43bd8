package redis

import (
	"context"
	"fmt"
	"time"

	"ms-rental/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	bookingLockPrefix = "booking_lock:"
	carLockPrefix     = "car_lock:"

	DefaultLockTTL = 30 * time.Second
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serializes status changes per booking, and acceptances per car,
// across every API replica.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Redis{Client: client, TTL: ttl, Logger: log}
}

func (r *Redis) LockBooking(ctx context.Context, bookingID, owner string) (bool, error) {
	return r.lock(ctx, bookingLockPrefix+bookingID, owner)
}

func (r *Redis) UnlockBooking(ctx context.Context, bookingID, owner string) error {
	return r.unlock(ctx, bookingLockPrefix+bookingID, owner)
}

func (r *Redis) LockCar(ctx context.Context, carID, owner string) (bool, error) {
	return r.lock(ctx, carLockPrefix+carID, owner)
}

func (r *Redis) UnlockCar(ctx context.Context, carID, owner string) error {
	return r.unlock(ctx, carLockPrefix+carID, owner)
}

// IsBookingLocked checks the lock without taking it
func (r *Redis) IsBookingLocked(ctx context.Context, bookingID string) (bool, error) {
	n, err := r.Client.Exists(ctx, bookingLockPrefix+bookingID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LockBookings takes every booking lock or none of them.
func (r *Redis) LockBookings(ctx context.Context, bookingIDs []string, owner string) (bool, error) {
	locked := []string{}
	for _, id := range bookingIDs {
		ok, err := r.LockBooking(ctx, id, owner)
		if err != nil || !ok {
			for _, l := range locked {
				_ = r.UnlockBooking(ctx, l, owner)
			}
			return false, err
		}
		locked = append(locked, id)
	}
	return true, nil
}

func (r *Redis) UnlockBookings(ctx context.Context, bookingIDs []string, owner string) error {
	var firstErr error
	for _, id := range bookingIDs {
		if err := r.UnlockBooking(ctx, id, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Redis) lock(ctx context.Context, key, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, key, owner, r.TTL).Result()
	if err != nil {
		r.Logger.Error("REDIS", fmt.Sprintf("SETNX %s failed: %v", key, err))
		return false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("%s is held by another operation", key))
	}
	return ok, nil
}

func (r *Redis) unlock(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, r.Client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		r.Logger.Error("REDIS", fmt.Sprintf("release %s failed: %v", key, err))
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}
