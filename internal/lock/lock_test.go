package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()

	first, err := m.Acquire(ctx, "t1", "push-cdrs")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "lock:t1:push-cdrs", first.Key())

	second, err := m.Acquire(ctx, "t1", "push-cdrs")
	require.NoError(t, err)
	assert.Nil(t, second)

	other, err := m.Acquire(ctx, "t2", "push-cdrs")
	require.NoError(t, err)
	assert.NotNil(t, other, "tenants are independent")

	require.NoError(t, m.Release(ctx, first))
	again, err := m.Acquire(ctx, "t1", "push-cdrs")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestMemoryLockerReleaseIsIdempotentPerHandle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()

	first, _ := m.Acquire(ctx, "t1", "r")
	require.NoError(t, m.Release(ctx, first))

	second, _ := m.Acquire(ctx, "t1", "r")
	require.NotNil(t, second)

	// a second release of the stale handle must not free the new holder
	require.NoError(t, m.Release(ctx, first))
	assert.True(t, m.Held("t1", "r"))
	assert.NoError(t, m.Release(ctx, nil))
}

func TestMemoryLockerRefresh(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()

	l, _ := m.Acquire(ctx, "t1", "r")
	require.NotNil(t, l)
	assert.NoError(t, m.Refresh(ctx, l))

	m.Expire("t1", "r")
	assert.ErrorIs(t, m.Refresh(ctx, l), ErrNotHeld)

	next, _ := m.Acquire(ctx, "t1", "r")
	require.NotNil(t, next)
	assert.ErrorIs(t, m.Refresh(ctx, l), ErrNotHeld, "stale handle")
	assert.NoError(t, m.Refresh(ctx, next))

	require.NoError(t, m.Release(ctx, l))
	assert.True(t, m.Held("t1", "r"), "stale handle must not free the new holder")
	assert.ErrorIs(t, m.Refresh(ctx, nil), ErrNotHeld)
}

func TestMemoryLockerConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(ctx, "t1", "push-cdrs")
			if err == nil && l != nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("ROAMING_TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("set ROAMING_TEST_REDIS_ADDRESS to run redis lock tests")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	r := NewRedisLocker(rdb, 5*time.Second)
	tenant := "test-" + time.Now().Format("150405.000000")

	first, err := r.Acquire(ctx, tenant, "push-cdrs")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.Acquire(ctx, tenant, "push-cdrs")
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, r.Refresh(ctx, first))
	require.NoError(t, r.Release(ctx, first))
	require.NoError(t, r.Release(ctx, first))
	assert.ErrorIs(t, r.Refresh(ctx, first), ErrNotHeld)

	third, err := r.Acquire(ctx, tenant, "push-cdrs")
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, r.Release(ctx, third))
}
