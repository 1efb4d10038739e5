package slackbot

import (
	"sync"
	"time"
)

const (
	dedupTTL      = 5 * time.Minute
	dedupCapacity = 10000
)

// Deduper is a bounded TTL set of event IDs. Socket Mode redelivers events
// when an ack is lost, so every inbound event is checked against it before
// any work starts.
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	cap   int
	clock func() time.Time
}

// DeduperOption configures a Deduper.
type DeduperOption func(*Deduper)

// WithDedupTTL overrides how long an event ID is remembered.
func WithDedupTTL(ttl time.Duration) DeduperOption {
	return func(d *Deduper) { d.ttl = ttl }
}

// WithDedupCapacity overrides the maximum number of remembered IDs.
func WithDedupCapacity(n int) DeduperOption {
	return func(d *Deduper) { d.cap = n }
}

// WithDedupClock injects a clock for tests.
func WithDedupClock(clock func() time.Time) DeduperOption {
	return func(d *Deduper) { d.clock = clock }
}

// NewDeduper returns a Deduper with a 5 minute TTL and room for 10000 IDs.
func NewDeduper(opts ...DeduperOption) *Deduper {
	d := &Deduper{
		seen:  make(map[string]time.Time),
		ttl:   dedupTTL,
		cap:   dedupCapacity,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Duplicate reports whether id was already seen within the TTL, recording it
// otherwise. The check and the record are a single atomic step.
func (d *Deduper) Duplicate(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true
	}
	if len(d.seen) >= d.cap {
		d.sweepLocked(now)
	}
	d.seen[id] = now
	return false
}

// Size returns the number of remembered IDs, expired ones included.
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// sweepLocked drops expired entries, then falls back to evicting the oldest
// entries until a quarter of the capacity is free again.
func (d *Deduper) sweepLocked(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
	for len(d.seen) >= d.cap-d.cap/4 {
		oldestID := ""
		var oldestAt time.Time
		for id, at := range d.seen {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
			}
		}
		if oldestID == "" {
			return
		}
		delete(d.seen, oldestID)
	}
}
