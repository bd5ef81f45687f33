package countcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manual time source for the cache under test.
type clock struct {
	now time.Time
}

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(fetch FetchFunc) (*Cache, *clock) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	c := New(fetch)
	c.now = func() time.Time { return clk.now }
	return c, clk
}

func TestGetCachesWithinTTL(t *testing.T) {
	calls := 0
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return 3, nil
	})

	count, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, calls)

	clk.advance(TTL - time.Second)
	count, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, calls, "read inside TTL must not hit the backend")

	clk.advance(2 * time.Second)
	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "read past TTL refetches")
}

func TestGlobalThrottleReturnsLastKnown(t *testing.T) {
	counts := map[string]int{"u1": 2, "u2": 4}
	calls := 0
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return counts[userID], nil
	})

	count, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// u2 has no entry and the global window is still open, so it gets the
	// safe default without a backend call.
	count, err = c.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, calls)

	clk.advance(MinFetchInterval)
	count, err = c.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 2, calls)
}

func TestInvalidateOverridesThrottle(t *testing.T) {
	calls := 0
	c, _ := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return calls, nil
	})

	count, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A mutation happened; the next read must see a fresh count even though
	// both the TTL and the throttle window are still open.
	c.Invalidate("u1")
	count, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, calls)
}

func TestManualRefreshFloor(t *testing.T) {
	calls := 0
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return 5, nil
	})

	_, err := c.Refresh(context.Background(), "u1")
	require.NoError(t, err)

	clk.advance(ManualRefreshInterval - time.Second)
	count, err := c.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 1, calls, "refresh inside the floor serves the cached value")

	clk.advance(2 * time.Second)
	_, err = c.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchErrorDegradesToLastKnown(t *testing.T) {
	fail := false
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		if fail {
			return 0, errors.New("backend down")
		}
		return 3, nil
	})

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)

	fail = true
	clk.advance(TTL + time.Second)
	count, err := c.Get(context.Background(), "u1")
	assert.Error(t, err)
	assert.Equal(t, 3, count, "error fetch keeps the last known value")
}

func TestSubscribersNotifiedOnChange(t *testing.T) {
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		return 4, nil
	})

	var got []int
	unsubscribe := c.Subscribe(func(userID string, count int) {
		got = append(got, count)
	})

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got)

	unsubscribe()
	clk.advance(TTL + time.Second)
	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "no notifications after unsubscribe")
}

func TestLimitReached(t *testing.T) {
	c, _ := newTestCache(func(ctx context.Context, userID string) (int, error) {
		return 5, nil
	})

	reached, err := c.LimitReached(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestResetClearsEverything(t *testing.T) {
	calls := 0
	c, _ := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return 1, nil
	})

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)

	c.Reset()
	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestObserverSeesReadOutcomes(t *testing.T) {
	calls := 0
	c, clk := newTestCache(func(ctx context.Context, userID string) (int, error) {
		calls++
		return calls, nil
	})

	var outcomes []string
	c.SetObserver(func(outcome string) { outcomes = append(outcomes, outcome) })

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)

	clk.advance(TTL + time.Second)
	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)

	clk.advance(time.Second)
	_, err = c.Get(context.Background(), "u2")
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch", "hit", "fetch", "throttled"}, outcomes)
}
