package ai

import (
	"log/slog"
	"sync"
	"time"
)

// quota tracks process-local free-tier usage for one backend: a daily request
// budget plus a sliding sub-daily window (per minute or per hour depending on
// the provider). All state is owned by the backend instance; a mutex makes the
// check/consume pair safe for concurrent requests.
type quota struct {
	mu sync.Mutex

	name        string
	dailyLimit  int
	windowLimit int
	window      time.Duration

	remaining   int
	usageCount  int
	lastRequest time.Time
	stamps      []time.Time

	now func() time.Time // overridable in tests
}

func newQuota(name string, cfg BackendConfig) *quota {
	return &quota{
		name:        name,
		dailyLimit:  cfg.DailyLimit,
		windowLimit: cfg.WindowLimit,
		window:      cfg.Window,
		remaining:   cfg.DailyLimit,
		now:         time.Now,
	}
}

// allow reports whether another request fits within both the daily budget and
// the sliding window. The daily counter is lazily reset when more than 24h
// have passed since the last request; there is no background timer.
func (q *quota) allow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if now.Sub(q.lastRequest) > 24*time.Hour {
		q.remaining = q.dailyLimit
		q.usageCount = 0
	}
	if q.remaining <= 0 {
		return false
	}

	q.prune(now)
	return len(q.stamps) < q.windowLimit
}

// consume records one permitted request. Never called for requests rejected
// by allow.
func (q *quota) consume(tokens int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.usageCount++
	if q.remaining > 0 {
		q.remaining--
	}
	q.stamps = append(q.stamps, now)
	q.lastRequest = now

	slog.Debug("backend usage updated",
		"backend", q.name,
		"usage_count", q.usageCount,
		"remaining", q.remaining,
		"tokens", tokens,
	)
}

// prune drops window timestamps older than the window. Caller holds the lock.
func (q *quota) prune(now time.Time) {
	cutoff := now.Add(-q.window)
	kept := q.stamps[:0]
	for _, ts := range q.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	q.stamps = kept
}

// usage returns the current counters for status reporting.
func (q *quota) usage() (usageCount, remaining, windowUsage int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.now())
	return q.usageCount, q.remaining, len(q.stamps)
}
