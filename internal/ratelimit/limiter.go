package ratelimit

import (
	"strconv"
	"sync"
	"time"
)

const (
	DefaultInterval = time.Minute
	DefaultCapacity = 500
)

// Result is the outcome of one Admit call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count int
	start time.Time
}

// Limiter is a fixed-window, in-memory request counter. Windows are keyed by
// identifier and interval index; capacity applies per key.
//
// The Limiter is safe for concurrent use.
type Limiter struct {
	interval time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(interval time.Duration, capacity int, opts ...Option) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Limiter{
		interval: interval,
		capacity: capacity,
		now:      time.Now,
		windows:  make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Interval() time.Duration { return l.interval }

func (l *Limiter) Capacity() int { return l.capacity }

// Admit counts one request for identifier against its current window.
// Rejected requests are not counted.
func (l *Limiter) Admit(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := l.key(identifier, now)

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}

	l.sweep(now)

	res := Result{Limit: l.capacity, ResetAt: w.start.Add(l.interval)}
	if w.count >= l.capacity {
		return res
	}
	w.count++
	res.Allowed = true
	res.Remaining = l.capacity - w.count
	return res
}

// Len reports how many windows are currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) key(identifier string, now time.Time) string {
	idx := now.UnixNano() / int64(l.interval)
	return identifier + ":" + strconv.FormatInt(idx, 10)
}

// sweep drops windows that started more than one interval ago. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) > l.interval {
			delete(l.windows, k)
		}
	}
}
