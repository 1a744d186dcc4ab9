// Package debounce suppresses duplicate physical triggers. A single
// button press can emit several bus messages within milliseconds, and a
// flaky sensor may repeat; only the first message per device-action pair
// inside the window is admitted.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the debounce window used when none is configured.
const DefaultWindow = 2 * time.Second

type key struct {
	deviceID string
	action   string
}

// Filter tracks the last admitted time per (deviceID, buttonAction)
// pair. Entries older than the window are pruned lazily, so memory is
// bounded by the number of distinct device triggers, not by time.
// Safe for concurrent use.
type Filter struct {
	window time.Duration

	mu   sync.Mutex
	last map[key]time.Time
}

// New creates a Filter with the given window. A window <= 0 falls back
// to DefaultWindow.
func New(window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{
		window: window,
		last:   make(map[key]time.Time),
	}
}

// Admit reports whether a message for the pair at the given time should
// pass. The first message for a pair is always admitted; subsequent
// messages are admitted only once the window has elapsed since the last
// admitted one. Pairs are independent: two different devices firing
// simultaneously are both admitted.
func (f *Filter) Admit(deviceID, buttonAction string, at time.Time) bool {
	k := key{deviceID: deviceID, action: buttonAction}

	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.last[k]; ok && at.Sub(prev) < f.window {
		return false
	}
	f.last[k] = at
	f.pruneLocked(at)
	return true
}

// Len returns the number of tracked pairs. Used by tests and the health
// snapshot.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.last)
}

// pruneLocked drops entries whose window has fully elapsed. Called with
// the lock held on every admit, which keeps the map bounded without a
// background task.
func (f *Filter) pruneLocked(now time.Time) {
	for k, t := range f.last {
		if now.Sub(t) >= f.window {
			delete(f.last, k)
		}
	}
}
