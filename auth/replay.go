package auth

import (
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	kclock "k8s.io/utils/clock"
)

// DefaultCleanupInterval is the default value for ReplayCacheOptions.CleanupInterval.
const DefaultCleanupInterval = time.Minute

// ReplayCache remembers the IDs of tokens that were already used, until they expire.
// Expired entries are purged in background.
type ReplayCache struct {
	seen      *haxmap.Map[string, time.Time]
	clock     kclock.WithTicker
	stopped   atomic.Bool
	runningCh chan struct{}
	stopCh    chan struct{}
}

// ReplayCacheOptions are options for NewReplayCache.
type ReplayCacheOptions struct {
	// Interval to purge expired entries
	// Default: DefaultCleanupInterval
	CleanupInterval time.Duration

	// Internal clock property, used for testing
	clock kclock.WithTicker
}

// NewReplayCache returns a new ReplayCache and starts its background cleanup.
// Call Stop to release it.
func NewReplayCache(opts ReplayCacheOptions) *ReplayCache {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.clock == nil {
		opts.clock = kclock.RealClock{}
	}

	c := &ReplayCache{
		seen:      haxmap.New[string, time.Time](),
		clock:     opts.clock,
		runningCh: make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	go c.runCleanup(opts.CleanupInterval)

	return c
}

// Claim records the use of the token with ID jti, which expires at exp.
// It returns false if the ID was already claimed and has not expired yet.
func (c *ReplayCache) Claim(jti string, exp time.Time) bool {
	prev, loaded := c.seen.GetOrSet(jti, exp)
	if !loaded {
		return true
	}
	if prev.After(c.clock.Now()) {
		return false
	}

	// The previous entry expired and wasn't purged yet
	c.seen.Set(jti, exp)
	return true
}

// Len returns the number of IDs currently tracked, including expired ones not yet purged.
func (c *ReplayCache) Len() int {
	return int(c.seen.Len())
}

// Cleanup removes all expired entries.
func (c *ReplayCache) Cleanup() {
	now := c.clock.Now()

	// Collect first and delete in bulk
	expired := make([]string, 0)
	c.seen.ForEach(func(jti string, exp time.Time) bool {
		if !exp.After(now) {
			expired = append(expired, jti)
		}
		return true
	})
	if len(expired) > 0 {
		c.seen.Del(expired...)
	}
}

func (c *ReplayCache) runCleanup(interval time.Duration) {
	defer close(c.runningCh)

	t := c.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C():
			c.Cleanup()
		}
	}
}

// Stop the background cleanup.
// It is safe to call Stop more than once.
func (c *ReplayCache) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	<-c.runningCh
}
