package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis and a client pointed at it
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, 10*time.Second, nil), mr
}

func TestLockBookingIsExclusive(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockBooking(ctx, "b-1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockBooking(ctx, "b-1", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not get the lock")

	locked, err := r.IsBookingLocked(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, locked)

	// other bookings are independent
	ok, err = r.LockBooking(ctx, "b-2", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockOnlyByOwner(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := r.LockBooking(ctx, "b-1", "owner-a")
	require.NoError(t, err)

	require.NoError(t, r.UnlockBooking(ctx, "b-1", "owner-b"))
	assert.True(t, mr.Exists("booking_lock:b-1"), "foreign unlock must be a no-op")

	require.NoError(t, r.UnlockBooking(ctx, "b-1", "owner-a"))
	assert.False(t, mr.Exists("booking_lock:b-1"))

	// unlocking a free key is fine
	require.NoError(t, r.UnlockBooking(ctx, "b-1", "owner-a"))
}

func TestLockExpires(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockCar(ctx, "car-1", "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = r.LockCar(ctx, "car-1", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be reclaimable")
	require.NoError(t, r.UnlockCar(ctx, "car-1", "owner-b"))
}

func TestLockBookingsRollsBack(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := r.LockBooking(ctx, "b-3", "owner-x")
	require.NoError(t, err)

	ok, err := r.LockBookings(ctx, []string{"b-1", "b-2", "b-3"}, "owner-a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("booking_lock:b-1"), "partial locks must be released")
	assert.False(t, mr.Exists("booking_lock:b-2"))

	require.NoError(t, r.UnlockBooking(ctx, "b-3", "owner-x"))

	ok, err = r.LockBookings(ctx, []string{"b-1", "b-2", "b-3"}, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.UnlockBookings(ctx, []string{"b-1", "b-2", "b-3"}, "owner-a"))
}

func TestConcurrentLockSingleWinner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.LockBooking(ctx, "b-hot", fmt.Sprintf("owner-%d", i))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestLockErrorsWhenRedisDown(t *testing.T) {
	r, mr := setupTestRedis(t)
	mr.Close()

	_, err := r.LockBooking(context.Background(), "b-1", "owner-a")
	assert.Error(t, err)
}
