package core

import (
	"sync"
	"time"
)

// RateWindow is a keyed sliding-window event counter. Each key keeps the
// timestamps of its recent events, bounded both by a time horizon and by a
// fixed capacity.
type RateWindow struct {
	mu       sync.Mutex
	capacity int
	windows  map[string]*window
}

type window struct {
	events  []time.Time
	horizon time.Duration
}

// NewRateWindow creates a tracker that keeps at most capacity events per key
func NewRateWindow(capacity int) *RateWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &RateWindow{
		capacity: capacity,
		windows:  make(map[string]*window),
	}
}

// Record appends an event at ts, evicts everything older than ts-horizon and
// returns the number of events left in the window.
func (r *RateWindow) Record(key string, ts time.Time, horizon time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok {
		w = &window{events: make([]time.Time, 0, 8)}
		r.windows[key] = w
	}
	w.horizon = horizon
	w.events = append(w.events, ts)
	w.evict(ts)

	if over := len(w.events) - r.capacity; over > 0 {
		w.events = append(w.events[:0], w.events[over:]...)
	}
	return len(w.events)
}

// Prune evicts expired entries of a key using its last recorded horizon and
// returns what is left. Empty windows are dropped.
func (r *RateWindow) Prune(key string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok {
		return 0
	}
	w.evict(now)
	if len(w.events) == 0 {
		delete(r.windows, key)
	}
	return len(w.events)
}

// Count returns the number of events currently held for a key, without eviction
func (r *RateWindow) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.windows[key]; ok {
		return len(w.events)
	}
	return 0
}

// Latest returns the newest timestamp held for a key
func (r *RateWindow) Latest(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || len(w.events) == 0 {
		return time.Time{}, false
	}
	latest := w.events[0]
	for _, ts := range w.events[1:] {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, true
}

// Clear forgets every event of a key
func (r *RateWindow) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.windows, key)
}

// Keys returns a snapshot of the tracked keys
func (r *RateWindow) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.windows))
	for k := range r.windows {
		keys = append(keys, k)
	}
	return keys
}

// evict drops every entry strictly older than now-horizon. Entries are not
// assumed to be sorted, so the whole slice is filtered.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.horizon)
	kept := w.events[:0]
	for _, ts := range w.events {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = kept
}
