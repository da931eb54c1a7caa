// Package intake is the boundary between external event providers and
// the reconciliation engine: it authenticates deliveries, drops exact
// eventId repeats, and translates provider payloads into inbound
// events. It is the only deduplication layer; the engine never
// re-checks.
package intake

import (
	"sync"
	"time"
)

const (
	// DefaultDedupWindow is how long a seen eventId is remembered.
	DefaultDedupWindow = time.Hour

	// MaxTrackedEventIDs bounds memory used by deduplication state.
	// When the window is full, dedup fails open: a duplicate slipping
	// through is benign because reconciliation is replay-safe.
	MaxTrackedEventIDs = 10000
)

// Deduper retains recently-seen eventIds in a bounded, time-limited
// window and reports exact repeats.
type Deduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	maxIDs int
	now    func() time.Time
}

// NewDeduper creates a deduper. Non-positive arguments fall back to the
// defaults.
func NewDeduper(window time.Duration, maxIDs int) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if maxIDs <= 0 {
		maxIDs = MaxTrackedEventIDs
	}
	return &Deduper{
		seen:   make(map[string]time.Time),
		window: window,
		maxIDs: maxIDs,
		now:    time.Now,
	}
}

// Seen reports whether eventID was recorded within the window. It does
// not record: a delivery is marked only after it processes successfully,
// so a failed delivery stays retryable. Empty IDs are never deduplicated.
func (d *Deduper) Seen(eventID string) bool {
	if eventID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[eventID]
	return ok && at.After(d.now().Add(-d.window))
}

// Mark records eventID as processed.
func (d *Deduper) Mark(eventID string) {
	if eventID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if len(d.seen) >= d.maxIDs {
		d.sweepLocked(now.Add(-d.window))
	}
	if len(d.seen) >= d.maxIDs {
		// Window saturated; fail open rather than block intake. A
		// duplicate slipping through is benign because reconciliation
		// is replay-safe.
		return
	}
	d.seen[eventID] = now
}

// Len returns the number of tracked eventIds (for tests/monitoring).
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduper) sweepLocked(cutoff time.Time) {
	for id, at := range d.seen {
		if !at.After(cutoff) {
			delete(d.seen, id)
		}
	}
}
