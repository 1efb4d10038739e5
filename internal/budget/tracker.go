// Package budget enforces a daily ceiling on model token spend. The
// tracker counts tokens across all conversations and rolls over at UTC
// midnight; a zero limit disables enforcement.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current time. Injectable for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Exceeded is returned by Record when a run pushes the day's spend past
// the limit. The tokens are still counted.
type Exceeded struct {
	Limit int
	Used  int
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf("daily token budget exceeded: %d used of %d", e.Used, e.Limit)
}

// Tracker counts tokens spent per UTC day. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	limit int
	day   string // YYYY-MM-DD
	used  int
	clock Clock
}

// NewTracker creates a tracker with the given daily token limit. A
// limit of zero or less means unlimited.
func NewTracker(limitPerDay int) *Tracker {
	return &Tracker{limit: limitPerDay, clock: realClock{}}
}

// NewTrackerWithClock creates a tracker with an injectable clock.
func NewTrackerWithClock(limitPerDay int, clock Clock) *Tracker {
	return &Tracker{limit: limitPerDay, clock: clock}
}

// Seed sets today's spend, typically replayed from run history after a
// restart. It overwrites whatever has been recorded so far today.
func (t *Tracker) Seed(tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.used = tokens
}

// Allow reports whether another run may start today.
func (t *Tracker) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.limit <= 0 || t.used < t.limit
}

// Record adds tokens to today's total. It returns *Exceeded when the
// addition crosses the limit.
func (t *Tracker) Record(tokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.used += tokens
	if t.limit > 0 && t.used > t.limit {
		return &Exceeded{Limit: t.limit, Used: t.used}
	}
	return nil
}

// Used returns the tokens spent so far today.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.used
}

// Remaining returns the tokens left today and whether a limit applies.
func (t *Tracker) Remaining() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	if t.limit <= 0 {
		return 0, false
	}
	left := t.limit - t.used
	if left < 0 {
		left = 0
	}
	return left, true
}

// rollover resets the counter when the UTC day changes. Callers hold mu.
func (t *Tracker) rollover() {
	day := t.clock.Now().UTC().Format("2006-01-02")
	if day != t.day {
		t.day = day
		t.used = 0
	}
}
