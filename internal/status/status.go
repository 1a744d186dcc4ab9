// Package status provides a thread-safe health tracker for the babylog
// daemon. It is read by the HTTP health endpoint and the dashboard.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/babylog/internal/care"
)

// Config contains daemon configuration for display.
type Config struct {
	Version      string
	Broker       string
	Topics       []string
	HTTPAddr     string
	DatabasePath string
	DebounceMs   int64
	AutoClose    bool
	Timezone     string
}

// Counts tracks processed-message totals since startup.
type Counts struct {
	Feeding      int
	Sleep        int
	Diaper       int
	AutoClosed   int
	Orphans      int
	Debounced    int
	Unmapped     int
	DecodeErrors int
}

// Snapshot is a point-in-time view of daemon state. It is a value
// type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	DBHealthy     bool
	Counts        Counts
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			DBHealthy: true,
		},
	}
}

// SetMQTTConnected sets the bus connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetDBHealthy sets the database health flag.
func (t *Tracker) SetDBHealthy(healthy bool) {
	t.mu.Lock()
	t.snap.DBHealthy = healthy
	t.mu.Unlock()
}

// RecordEvent counts one appended care event.
func (t *Tracker) RecordEvent(ev care.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case care.FeedingStartLeft, care.FeedingStartRight, care.FeedingEnd:
		t.snap.Counts.Feeding++
	case care.SleepStart, care.SleepEnd:
		t.snap.Counts.Sleep++
	case care.DiaperPee, care.DiaperPoo, care.DiaperBoth:
		t.snap.Counts.Diaper++
	}
	if ev.AutoClosed {
		t.snap.Counts.AutoClosed++
	}
	if ev.Orphan {
		t.snap.Counts.Orphans++
	}
}

// IncDebounced counts one message suppressed by the debounce filter.
func (t *Tracker) IncDebounced() {
	t.mu.Lock()
	t.snap.Counts.Debounced++
	t.mu.Unlock()
}

// IncUnmapped counts one admitted message with no configured mapping.
func (t *Tracker) IncUnmapped() {
	t.mu.Lock()
	t.snap.Counts.Unmapped++
	t.mu.Unlock()
}

// IncDecodeError counts one undecodable bus payload.
func (t *Tracker) IncDecodeError() {
	t.mu.Lock()
	t.snap.Counts.DecodeErrors++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
