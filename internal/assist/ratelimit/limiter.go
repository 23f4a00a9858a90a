// Package ratelimit throttles calls to the external assistance capability.
// The provider enforces a small per-minute quota, so the limiter keeps a
// sliding window of recent call timestamps and blocks callers that would
// overrun it.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxCalls is a conservative ceiling below the provider's 10-per-minute
// quota.
const DefaultMaxCalls = 8

// DefaultWindow is the rolling window the quota applies to.
const DefaultWindow = 60 * time.Second

// Clock abstracts time so tests can simulate window exhaustion without real
// delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }

// SlidingWindow is a mutex-protected sliding-window rate limiter. A single
// instance may be shared by concurrent reconciliation runs; the combined
// call rate never exceeds maxCalls per window.
type SlidingWindow struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	stamps   []time.Time
	clock    Clock
}

// NewSlidingWindow creates a limiter allowing maxCalls per window. Values
// below 1 and non-positive windows fall back to the defaults.
func NewSlidingWindow(maxCalls int, window time.Duration) *SlidingWindow {
	return NewSlidingWindowWithClock(maxCalls, window, SystemClock())
}

// NewSlidingWindowWithClock creates a limiter on an explicit clock.
func NewSlidingWindowWithClock(maxCalls int, window time.Duration, clock Clock) *SlidingWindow {
	if maxCalls < 1 {
		maxCalls = DefaultMaxCalls
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &SlidingWindow{
		maxCalls: maxCalls,
		window:   window,
		stamps:   make([]time.Time, 0, maxCalls),
		clock:    clock,
	}
}

// Wait blocks until a call slot is available, then records the call.
//
// Timestamps older than the window are dropped first. If the window is still
// at capacity, the caller sleeps until the window has elapsed since the
// oldest retained timestamp, after which the window is cleared. The mutex is
// held across the sleep so concurrent callers queue behind it rather than
// racing past the quota.
func (sw *SlidingWindow) Wait() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.dropExpired(now)

	if len(sw.stamps) >= sw.maxCalls {
		sleep := sw.window - now.Sub(sw.stamps[0]) + time.Second
		if sleep > 0 {
			sw.clock.Sleep(sleep)
		}
		sw.stamps = sw.stamps[:0]
	}

	sw.stamps = append(sw.stamps, sw.clock.Now())
}

// Pending returns the number of calls currently counted against the window.
func (sw *SlidingWindow) Pending() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.dropExpired(sw.clock.Now())
	return len(sw.stamps)
}

func (sw *SlidingWindow) dropExpired(now time.Time) {
	cut := 0
	for cut < len(sw.stamps) && now.Sub(sw.stamps[cut]) > sw.window {
		cut++
	}
	if cut > 0 {
		sw.stamps = append(sw.stamps[:0], sw.stamps[cut:]...)
	}
}
