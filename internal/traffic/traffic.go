// Package traffic keeps sliding windows of route evaluation outcomes and
// rate-limit denials. Health and the window gauges read from it.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained regardless of the queried window.
const maxAge = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	failureTimes []time.Time
	deniedTimes  []time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// NewTrackerWithClock creates a tracker that reads time from now. Used by tests.
func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// RecordSuccess records a completed evaluation.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordFailure records an evaluation that failed on a provider (geocoding or forecast).
// Invalid user input is not a failure.
func (t *Tracker) RecordFailure() {
	t.recordOutcome(&t.failureTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the number of outcomes (success + failure + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countInWindow(t.successTimes, cutoff) +
		countInWindow(t.failureTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.now().Add(-window))
}

// FailureRate returns (failureCount, totalCount) within the window. Denials are excluded.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	f := countInWindow(t.failureTimes, cutoff)
	return f, f + countInWindow(t.successTimes, cutoff)
}

// Degraded reports whether failures are at least thresholdPct of outcomes in
// the window. At least minSamples outcomes are needed before it reports true.
func (t *Tracker) Degraded(window time.Duration, thresholdPct, minSamples int) bool {
	failures, total := t.FailureRate(window)
	if total == 0 || total < minSamples {
		return false
	}
	return failures*100 >= thresholdPct*total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
	prune(&t.deniedTimes)
}
