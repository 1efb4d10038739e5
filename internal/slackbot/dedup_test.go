package slackbot

import (
	"sync"
	"testing"
	"time"
)

// mockClock provides a controllable time source for testing.
type mockClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestDeduper_FirstSightIsNotDuplicate(t *testing.T) {
	d := NewDeduper()

	if d.Duplicate("ev-1") {
		t.Error("expected first sight to pass")
	}
}

func TestDeduper_SecondSightIsDuplicate(t *testing.T) {
	d := NewDeduper()

	d.Duplicate("ev-1")
	if !d.Duplicate("ev-1") {
		t.Error("expected repeat to be flagged as duplicate")
	}
}

func TestDeduper_DistinctIDsPass(t *testing.T) {
	d := NewDeduper()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		if d.Duplicate(id) {
			t.Errorf("expected %s to pass", id)
		}
	}
}

func TestDeduper_EmptyIDNeverDuplicate(t *testing.T) {
	d := NewDeduper()

	if d.Duplicate("") || d.Duplicate("") {
		t.Error("empty IDs must never be flagged")
	}
	if d.Size() != 0 {
		t.Errorf("empty IDs must not be recorded, got size %d", d.Size())
	}
}

func TestDeduper_ExpiredIDPassesAgain(t *testing.T) {
	clock := &mockClock{t: time.Now()}
	d := NewDeduper(
		WithDedupTTL(1*time.Minute),
		WithDedupClock(clock.Now),
	)

	d.Duplicate("ev-1")
	clock.Advance(2 * time.Minute)

	if d.Duplicate("ev-1") {
		t.Error("expected expired ID to pass again")
	}
}

func TestDeduper_SweepAtCapacity(t *testing.T) {
	clock := &mockClock{t: time.Now()}
	d := NewDeduper(
		WithDedupCapacity(4),
		WithDedupTTL(10*time.Minute),
		WithDedupClock(clock.Now),
	)

	for _, id := range []string{"a", "b", "c", "d"} {
		d.Duplicate(id)
		clock.Advance(1 * time.Second)
	}

	// At capacity and nothing expired, so the oldest entries get evicted to
	// make room.
	d.Duplicate("e")

	if d.Size() > 4 {
		t.Errorf("expected at most 4 entries, got %d", d.Size())
	}
	if d.Duplicate("e") != true {
		t.Error("newest entry must survive the sweep")
	}
}

func TestDeduper_SweepPrefersExpired(t *testing.T) {
	clock := &mockClock{t: time.Now()}
	d := NewDeduper(
		WithDedupCapacity(3),
		WithDedupTTL(1*time.Minute),
		WithDedupClock(clock.Now),
	)

	d.Duplicate("old-1")
	d.Duplicate("old-2")
	clock.Advance(2 * time.Minute)
	d.Duplicate("fresh")

	d.Duplicate("new") // triggers the sweep

	if d.Duplicate("fresh") != true {
		t.Error("unexpired entry should survive when expired ones can go")
	}
}

func TestDeduper_ConcurrentSameID(t *testing.T) {
	d := NewDeduper()

	var wg sync.WaitGroup
	passed := make([]bool, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			passed[idx] = !d.Duplicate("same-event")
		}(i)
	}
	wg.Wait()

	count := 0
	for _, p := range passed {
		if p {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 goroutine to pass, got %d", count)
	}
}

func TestDeduper_Defaults(t *testing.T) {
	d := NewDeduper()

	if d.cap != 10000 {
		t.Errorf("expected capacity 10000, got %d", d.cap)
	}
	if d.ttl != 5*time.Minute {
		t.Errorf("expected TTL 5m, got %v", d.ttl)
	}
}
