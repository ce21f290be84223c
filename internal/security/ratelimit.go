package security

import (
	"sync"
	"time"
)

// RateLimiter implements a sliding window rate limiter keyed by client.
type RateLimiter struct {
	windows map[string]*window
	mu      sync.Mutex
	limit   int
	period  time.Duration
	burst   int
}

type window struct {
	requests []time.Time
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window
	RequestsPerWindow int
	// WindowDuration is the duration of the rate limit window
	WindowDuration time.Duration
	// BurstMax is the maximum number of requests in any single second
	BurstMax int
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstMax:          20,
	}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   config.RequestsPerWindow,
		period:  config.WindowDuration,
		burst:   config.BurstMax,
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request is allowed for the given key (e.g., user ID, IP)
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	w, exists := rl.windows[key]
	if !exists {
		w = &window{requests: make([]time.Time, 0, rl.limit)}
		rl.windows[key] = w
	}

	w.trim(now.Add(-rl.period))

	if len(w.requests) >= rl.limit {
		return false
	}

	if rl.burst > 0 {
		burstCutoff := now.Add(-time.Second)
		burstCount := 0
		for _, t := range w.requests {
			if t.After(burstCutoff) {
				burstCount++
			}
		}
		if burstCount >= rl.burst {
			return false
		}
	}

	w.requests = append(w.requests, now)
	return true
}

// trim drops requests older than the cutoff
func (w *window) trim(cutoff time.Time) {
	valid := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	w.requests = valid
}

// Info describes the current limit state for a key.
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// GetInfo returns the current limit state for a key.
func (rl *RateLimiter) GetInfo(key string) Info {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	info := Info{Limit: rl.limit, Remaining: rl.limit, ResetAt: now.Add(rl.period)}

	w, exists := rl.windows[key]
	if !exists {
		return info
	}

	w.trim(now.Add(-rl.period))

	info.Remaining = rl.limit - len(w.requests)
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	if len(w.requests) > 0 {
		info.ResetAt = w.requests[0].Add(rl.period)
	}
	return info
}

// cleanup periodically drops idle windows
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.period)
		for key, w := range rl.windows {
			w.trim(cutoff)
			if len(w.requests) == 0 {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}
