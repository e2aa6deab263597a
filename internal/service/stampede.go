package service

import (
	"sync"
)

// stampedeTracker counts in-progress misses per cache key. There is no
// single-flight: overlapping misses all fetch and all write. The count only
// feeds cacheStampedeDetectedTotal.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{active: make(map[string]int)}
}

// Begin records a miss for key and returns how many misses for key are now in progress.
// Pair every Begin with a deferred Done.
func (st *stampedeTracker) Begin(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// Done marks one miss for key as resolved.
func (st *stampedeTracker) Done(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active[key] <= 1 {
		delete(st.active, key)
		return
	}
	st.active[key]--
}
