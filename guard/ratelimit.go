// Package guard is the admission boundary in front of the reasoning
// pipeline. Its only policy today is a per-sender sliding-window rate limit.
package guard

import (
	"sync"
	"time"
)

const window = time.Minute

// Limiter admits or rejects senders based on how many attempts they made in
// the trailing minute. State is in-memory only and resets on restart.
type Limiter struct {
	mu      sync.Mutex
	max     int
	now     func() time.Time
	windows map[string][]time.Time
}

func NewLimiter(maxPerMinute int) *Limiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 20
	}
	return &Limiter{
		max:     maxPerMinute,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
}

// Admit records the attempt and reports whether the sender is within budget.
// The attempt is recorded even when rejected: a sender hammering past the
// limit keeps extending their own window.
func (l *Limiter) Admit(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.windows[senderID][:0]
	for _, ts := range l.windows[senderID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	l.windows[senderID] = kept

	return len(kept) <= l.max
}
