package politecrawl

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostThrottle serializes request pacing per host. Each host gets its own
// schedule; requests to different hosts never delay each other.
type hostThrottle struct {
	mu        sync.Mutex
	base      time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	next      map[string]time.Time
	last      map[string]time.Time
	overrides map[string]time.Duration
	limiters  map[string]*rate.Limiter
	rateCfg   RateLimit
	rng       *rand.Rand
}

func newHostThrottle(base, jitterMin, jitterMax time.Duration, rateCfg RateLimit) *hostThrottle {
	return &hostThrottle{
		base:      base,
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		next:      make(map[string]time.Time),
		last:      make(map[string]time.Time),
		overrides: make(map[string]time.Duration),
		limiters:  make(map[string]*rate.Limiter),
		rateCfg:   rateCfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until the host's minimum inter-request interval has elapsed.
// The slot is reserved under the lock, so concurrent callers for the same
// host are spaced by at least the configured minimum delay.
func (t *hostThrottle) Wait(ctx context.Context, host string) error {
	now := time.Now()

	t.mu.Lock()
	interval := t.interval(host)
	at := now
	if scheduled, ok := t.next[host]; ok && scheduled.After(now) {
		at = scheduled
	}
	t.next[host] = at.Add(interval)
	var limiter *rate.Limiter
	if t.rateCfg.Requests > 0 && t.rateCfg.Window > 0 {
		limiter = t.limiterLocked(host)
	}
	t.mu.Unlock()

	if sleep := time.Until(at); sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.last[host] = time.Now()
	t.mu.Unlock()
	return nil
}

// interval computes base_delay + uniform_random(jitter_min, jitter_max),
// honoring any crawl-delay override from robots rules. Caller holds the lock.
func (t *hostThrottle) interval(host string) time.Duration {
	base := t.base
	if override, ok := t.overrides[host]; ok && override > base {
		base = override
	}
	jitter := t.jitterMin
	if span := t.jitterMax - t.jitterMin; span > 0 {
		jitter += time.Duration(t.rng.Int63n(int64(span)))
	}
	return base + jitter
}

func (t *hostThrottle) configure(base, jitterMin, jitterMax time.Duration) {
	t.mu.Lock()
	t.base = base
	t.jitterMin = jitterMin
	t.jitterMax = jitterMax
	t.mu.Unlock()
}

// SetMinDelay records a robots crawl-delay override for a host. Only raises
// the effective delay, never lowers it below the configured base.
func (t *hostThrottle) SetMinDelay(host string, d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.overrides[host] = d
	t.mu.Unlock()
}

// LastRequest returns the timestamp of the host's most recent request.
func (t *hostThrottle) LastRequest(host string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.last[host]
	return ts, ok
}

func (t *hostThrottle) limiterLocked(host string) *rate.Limiter {
	limiter, ok := t.limiters[host]
	if ok {
		return limiter
	}
	interval := t.rateCfg.Window / time.Duration(t.rateCfg.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter = rate.NewLimiter(rate.Every(interval), t.rateCfg.Requests)
	t.limiters[host] = limiter
	return limiter
}
