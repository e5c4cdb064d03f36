// Package quota enforces a per-user daily request limit for chat calls.
package quota

import (
	"sync"
	"time"
)

// DefaultDailyLimit is the maximum number of accepted chat requests per
// user per UTC day when no explicit limit is configured.
const DefaultDailyLimit = 10

// Limiter tracks per-user daily usage and decides admit/reject for each
// request. The counter for each user resets on the first call of a new UTC
// calendar day.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	records map[string]*usageRecord
}

// usageRecord tracks one user's request count within a single calendar day.
type usageRecord struct {
	day   string // UTC date in YYYY-MM-DD form
	count int
}

// New returns a Limiter that admits at most limit requests per user per
// UTC day. If limit <= 0 it defaults to DefaultDailyLimit.
func New(limit int) *Limiter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Limiter{
		limit:   limit,
		now:     time.Now,
		records: make(map[string]*usageRecord),
	}
}

// Limit returns the configured daily limit per user.
func (l *Limiter) Limit() int {
	return l.limit
}

// CheckAndRecord records one request attempt for userID and reports whether
// it is admitted. The count advances on every attempt, admitted or not, so
// calls past the limit keep a user rejected for the rest of the day rather
// than winning back an admit later.
//
// The request that would push the count to limit+1 is the first rejected
// one: exactly limit requests are admitted per user per UTC day.
func (l *Limiter) CheckAndRecord(userID string) bool {
	return l.checkAndRecordAt(userID, l.now())
}

// checkAndRecordAt is the time-injectable core of CheckAndRecord (for testing).
func (l *Limiter) checkAndRecordAt(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := dayKey(now)

	rec := l.records[userID]
	if rec == nil || rec.day != today {
		rec = &usageRecord{day: today}
		l.records[userID] = rec
	}
	rec.count++

	return rec.count <= l.limit
}

// Used returns the number of attempts recorded for userID today. Stale
// records from a previous day read as 0.
func (l *Limiter) Used(userID string) int {
	return l.usedAt(userID, l.now())
}

func (l *Limiter) usedAt(userID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.records[userID]
	if rec == nil || rec.day != dayKey(now) {
		return 0
	}
	return rec.count
}

// Remaining returns the number of requests userID may still make today.
// Returns 0 when the quota is exhausted.
func (l *Limiter) Remaining(userID string) int {
	if rem := l.limit - l.Used(userID); rem > 0 {
		return rem
	}
	return 0
}

// dayKey renders the UTC calendar date of t.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
