package engine

import (
	"context"
	"math"
	"sync"
	"time"
)

// Request budgets published by NCBI for E-utilities clients.
const (
	CapacityAnonymous = 3
	CapacityWithKey   = 10
)

// RateLimiter is a token bucket shared by every outbound request.
//
// Callers reserve a slot under the mutex and then sleep outside of it. Slots
// are handed out in lock order, so admission is first-come first-served and a
// stream of late arrivals can never push an earlier caller back. The token
// count may go negative; the deficit is the queue of reservations still
// waiting for their slot.
type RateLimiter struct {
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// StrictWindow additionally caps admissions to capacity within any
	// rolling one-second window, on top of the bucket's sustained rate.
	// Off, a full bucket admits capacity calls at once and the next after
	// 1/capacity seconds; on, no one-second window ever holds more than
	// capacity admissions.
	StrictWindow bool

	// OnWait observes every admission and the wait it required.
	OnWait func(wait time.Duration)

	mu         sync.Mutex
	capacity   int
	tokens     float64
	last       time.Time
	recent     []time.Time
	next       int
	admissions int64
}

// NewRateLimiter returns a full bucket of the given capacity (tokens per second).
func NewRateLimiter(capacity int) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		capacity: capacity,
		tokens:   float64(capacity),
	}
}

// CapacityFor selects the request budget for the configured credential.
func CapacityFor(apiKey string) int {
	if apiKey != "" {
		return CapacityWithKey
	}
	return CapacityAnonymous
}

// Acquire blocks until the caller is admitted and returns how long it waited.
// When the context deadline falls before the reserved slot, no token is taken
// and context.DeadlineExceeded is returned right away.
func (r *RateLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	if r == nil {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deadline, hasDeadline := ctx.Deadline()
	wait, ok := r.reserve(deadline, hasDeadline)
	if !ok {
		return 0, context.DeadlineExceeded
	}

	if r.OnWait != nil {
		r.OnWait(wait)
	}

	if wait <= 0 {
		return 0, nil
	}
	if err := r.sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

// Reserve takes the next slot without waiting and returns the delay until it
// opens. Callers that use Reserve directly are responsible for honoring the delay.
func (r *RateLimiter) Reserve() time.Duration {
	wait, _ := r.reserve(time.Time{}, false)
	return wait
}

// Capacity returns the bucket size.
func (r *RateLimiter) Capacity() int {
	if r == nil {
		return 0
	}
	return r.capacity
}

// Available returns the tokens currently available, clamped to [0, capacity].
func (r *RateLimiter) Available() float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillLocked(r.now())
	return math.Max(0, r.tokens)
}

// Admissions returns the number of slots handed out so far.
func (r *RateLimiter) Admissions() int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admissions
}

func (r *RateLimiter) reserve(deadline time.Time, hasDeadline bool) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity < 1 {
		r.capacity = 1
		r.tokens = 1
	}

	now := r.now()
	r.refillLocked(now)

	var wait time.Duration
	if r.tokens < 1 {
		deficit := 1 - r.tokens
		wait = time.Duration(math.Ceil(deficit / float64(r.capacity) * float64(time.Second)))
	}

	if r.StrictWindow && len(r.recent) == r.capacity {
		earliest := r.recent[r.next].Add(time.Second)
		if at := now.Add(wait); at.Before(earliest) {
			wait = earliest.Sub(now)
		}
	}

	if hasDeadline && now.Add(wait).After(deadline) {
		return 0, false
	}

	r.tokens--
	r.admissions++
	if r.StrictWindow {
		r.remember(now.Add(wait))
	}
	return wait, true
}

func (r *RateLimiter) refillLocked(now time.Time) {
	if r.last.IsZero() {
		r.last = now
		return
	}
	elapsed := now.Sub(r.last)
	if elapsed <= 0 {
		return
	}
	r.tokens = math.Min(r.tokens+elapsed.Seconds()*float64(r.capacity), float64(r.capacity))
	r.last = now
}

func (r *RateLimiter) remember(at time.Time) {
	if len(r.recent) < r.capacity {
		r.recent = append(r.recent, at)
		return
	}
	r.recent[r.next] = at
	r.next = (r.next + 1) % r.capacity
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
