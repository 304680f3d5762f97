package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestRateStore(clock *fakeClock) *memoryRateStore {
	return &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: clock.Now,
	}
}

func TestLoginLimiterDeniesSixthAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewLoginLimiter(newTestRateStore(clock), 5, 10*time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow(ctx, "alice|192.0.2.10"), "attempt %d", i+1)
	}
	require.False(t, limiter.Allow(ctx, "alice|192.0.2.10"))
}

func TestLoginLimiterWindowElapses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewLoginLimiter(newTestRateStore(clock), 5, 10*time.Minute)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		limiter.Allow(ctx, "bob|192.0.2.11")
	}
	require.False(t, limiter.Allow(ctx, "bob|192.0.2.11"))

	clock.Advance(10*time.Minute + time.Second)
	require.True(t, limiter.Allow(ctx, "bob|192.0.2.11"))
}

func TestLoginLimiterKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewLoginLimiter(newTestRateStore(clock), 5, 10*time.Minute)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		limiter.Allow(ctx, "carol|192.0.2.12")
	}
	require.False(t, limiter.Allow(ctx, "carol|192.0.2.12"))
	require.True(t, limiter.Allow(ctx, "carol|192.0.2.13"))
}

type failingRateStore struct{}

func (failingRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("backend down")
}

func TestLoginLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := NewLoginLimiter(failingRateStore{}, 5, 10*time.Minute)

	for i := 0; i < 20; i++ {
		require.True(t, limiter.Allow(context.Background(), "dave|192.0.2.14"))
	}
}

func TestMemoryRateStoreFixedWindowTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestRateStore(clock)

	ctx := context.Background()
	count, ttl, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(30 * time.Second)
	count, ttl, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 30*time.Second, ttl)
}
