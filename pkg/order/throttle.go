package order

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// ThrottleWindow is the rolling window submissions are counted over
const ThrottleWindow = time.Minute

// Throttle limits submissions per rolling minute. A limit of zero or less
// disables it.
type Throttle struct {
	mu     sync.Mutex
	limit  int
	stamps []time.Time
}

// NewThrottle allows limit submissions per rolling minute; zero disables it
func NewThrottle(limit int) *Throttle {
	return &Throttle{limit: limit}
}

// SetLimit changes the per-minute limit, keeping recorded submissions
func (t *Throttle) SetLimit(limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
}

// Limit returns the per-minute limit
func (t *Throttle) Limit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// prune drops timestamps outside the window ending at now
func (t *Throttle) prune(now time.Time) {
	cutoff := now.Add(-ThrottleWindow)
	i := 0
	for i < len(t.stamps) && !t.stamps[i].After(cutoff) {
		i++
	}
	t.stamps = t.stamps[i:]
}

// CanSubmit reports whether another submission fits in the window ending at now
func (t *Throttle) CanSubmit(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit <= 0 {
		return true
	}
	t.prune(now)
	return len(t.stamps) < t.limit
}

// Record registers a submission made at now
func (t *Throttle) Record(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)
	i := sort.Search(len(t.stamps), func(i int) bool { return t.stamps[i].After(now) })
	t.stamps = slices.Insert(t.stamps, i, now)
}

// Count returns the submissions inside the window ending at now
func (t *Throttle) Count(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)
	return len(t.stamps)
}

// NextSlot returns when the next submission will be allowed
func (t *Throttle) NextSlot(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)
	if t.limit <= 0 || len(t.stamps) < t.limit {
		return now
	}
	return t.stamps[len(t.stamps)-t.limit].Add(ThrottleWindow)
}
