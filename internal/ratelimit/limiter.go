// Package ratelimit implements fixed-window call counters keyed by function
// and caller.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the counting window for per-minute ceilings.
const DefaultWindow = time.Minute

// Decision is the outcome of one counted attempt.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter atomically checks and increments the counter for key. A rejected
// attempt never moves the counter past limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

// Key builds the counter key for a (function, caller) pair. Components are
// escaped so that distinct pairs never collide.
func Key(function, caller string) string {
	r := strings.NewReplacer(`\`, `\\`, ":", `\:`)
	return r.Replace(function) + ":" + r.Replace(caller)
}

type entry struct {
	count   int
	resetAt time.Time
}

// InMemory is a single-process Limiter.
type InMemory struct {
	mu     sync.Mutex
	window time.Duration
	items  map[string]entry
	now    func() time.Time
}

// NewInMemory creates an InMemory limiter. A non-positive window means
// DefaultWindow.
func NewInMemory(window time.Duration) *InMemory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &InMemory{
		window: window,
		items:  make(map[string]entry),
		now:    time.Now,
	}
}

func (l *InMemory) Allow(_ context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	curr, ok := l.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = entry{resetAt: now.Add(l.window)}
	}

	allowed := curr.count < limit
	if allowed {
		curr.count++
	}
	l.items[key] = curr

	return Decision{
		Allowed:   allowed,
		Count:     curr.count,
		Limit:     limit,
		Remaining: limit - curr.count,
		ResetAt:   curr.resetAt,
	}, nil
}

// Sweep drops counters whose window has ended.
func (l *InMemory) Sweep() {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *InMemory) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
