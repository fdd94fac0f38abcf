package politecrawl

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleSpacesSameHost(t *testing.T) {
	throttle := newHostThrottle(50*time.Millisecond, 0, 0, RateLimit{})
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, throttle.Wait(ctx, "example.com"))
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, 45*time.Millisecond, "gap between request %d and %d", i-1, i)
	}
}

func TestThrottleHostsIndependent(t *testing.T) {
	throttle := newHostThrottle(200*time.Millisecond, 0, 0, RateLimit{})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for _, host := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			require.NoError(t, throttle.Wait(ctx, h))
		}(host)
	}
	wg.Wait()

	// First request per host carries no accumulated delay.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestThrottleJitterWithinBounds(t *testing.T) {
	throttle := newHostThrottle(10*time.Millisecond, 5*time.Millisecond, 20*time.Millisecond, RateLimit{})
	for i := 0; i < 50; i++ {
		interval := throttle.interval("example.com")
		assert.GreaterOrEqual(t, interval, 15*time.Millisecond)
		assert.Less(t, interval, 30*time.Millisecond)
	}
}

func TestThrottleCrawlDelayOverride(t *testing.T) {
	throttle := newHostThrottle(10*time.Millisecond, 0, 0, RateLimit{})
	throttle.SetMinDelay("slow.example.com", 80*time.Millisecond)

	assert.Equal(t, 80*time.Millisecond, throttle.interval("slow.example.com"))
	assert.Equal(t, 10*time.Millisecond, throttle.interval("fast.example.com"))

	// An override below the base never lowers the effective delay.
	throttle.SetMinDelay("fast.example.com", time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, throttle.interval("fast.example.com"))
}

func TestThrottleWaitCancelled(t *testing.T) {
	throttle := newHostThrottle(time.Second, 0, 0, RateLimit{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, throttle.Wait(ctx, "example.com"))
	cancel()
	err := throttle.Wait(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottleRecordsLastRequest(t *testing.T) {
	throttle := newHostThrottle(time.Millisecond, 0, 0, RateLimit{})
	_, ok := throttle.LastRequest("example.com")
	assert.False(t, ok)

	require.NoError(t, throttle.Wait(context.Background(), "example.com"))
	ts, ok := throttle.LastRequest("example.com")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, time.Second)
}
