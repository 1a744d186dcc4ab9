// Package session tracks open start/end pairs per session kind and
// computes durations on close. It owns the only mutable listener state
// besides the debounce map, and is recoverable by querying the event
// store, so a restart loses nothing.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
)

// ErrSessionOpen is returned for a start event while a session of the
// same kind is open and auto-close is disabled.
var ErrSessionOpen = errors.New("session already open")

// Store is the slice of the event store the reconciler needs.
type Store interface {
	Append(ctx context.Context, d care.Draft) (care.Event, error)
	FindOpenSession(ctx context.Context, kind care.SessionKind) (*care.Event, error)
}

// anchor is the start event of an open session.
type anchor struct {
	id string
	at time.Time
}

// Reconciler is the per-process state machine for feeding-left,
// feeding-right and sleep sessions. Diaper events are atomic and pass
// straight through. All appends of session-typed events must go through
// Record: the internal mutex is what serializes read-open-then-write so
// two near-simultaneous end events cannot both see an open session.
type Reconciler struct {
	store     Store
	log       *zap.Logger
	autoClose bool
	now       func() time.Time

	mu   sync.Mutex
	open map[care.SessionKind]anchor
}

// New creates a Reconciler. Call Init before first use to derive the
// open-session state from the store.
func New(store Store, log *zap.Logger, autoClose bool) *Reconciler {
	return &Reconciler{
		store:     store,
		log:       log,
		autoClose: autoClose,
		now:       time.Now,
		open:      make(map[care.SessionKind]anchor),
	}
}

// Init derives the initial state for every kind by querying the store.
// The reconciler holds no durable state of its own.
func (r *Reconciler) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kind := range care.SessionKinds {
		ev, err := r.store.FindOpenSession(ctx, kind)
		if err != nil {
			return fmt.Errorf("recover open %s session: %w", kind, err)
		}
		if ev != nil {
			r.open[kind] = anchor{id: ev.ID, at: ev.Timestamp}
			r.log.Info("recovered open session",
				zap.String("kind", string(kind)),
				zap.Time("started", ev.Timestamp))
		}
	}
	return nil
}

// Record runs one event through the state machine and appends the
// result. It returns every event appended, in append order: an
// auto-close end may precede the start that triggered it.
//
// Atomic event types (diapers) bypass the state machine entirely.
func (r *Reconciler) Record(ctx context.Context, d care.Draft) ([]care.Event, error) {
	if !d.Type.Valid() {
		// Let the store produce the canonical validation error.
		_, err := r.store.Append(ctx, d)
		return nil, err
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = r.now().UTC()
	}
	if d.Type.IsAtomic() {
		ev, err := r.store.Append(ctx, d)
		if err != nil {
			return nil, err
		}
		return []care.Event{ev}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if kind := d.Type.StartKind(); kind != "" {
		return r.recordStartLocked(ctx, kind, d)
	}
	return r.recordEndLocked(ctx, d)
}

// recordStartLocked opens a session, auto-closing a stale one of the
// same kind first when the policy allows.
func (r *Reconciler) recordStartLocked(ctx context.Context, kind care.SessionKind, d care.Draft) ([]care.Event, error) {
	var appended []care.Event

	if prev, isOpen := r.open[kind]; isOpen {
		if !r.autoClose {
			return nil, fmt.Errorf("%w: %s started %s", ErrSessionOpen, kind, prev.at.Format(time.RFC3339))
		}

		duration := care.DurationMinutes(prev.at, d.Timestamp)
		closeEv, err := r.store.Append(ctx, care.Draft{
			Type:            kind.EndType(),
			Timestamp:       d.Timestamp,
			DurationMinutes: &duration,
			AutoClosed:      true,
			DeviceSource:    d.DeviceSource,
		})
		if err != nil {
			return nil, err
		}
		delete(r.open, kind)
		appended = append(appended, closeEv)
		r.log.Info("auto-closed stale session",
			zap.String("kind", string(kind)),
			zap.Time("started", prev.at),
			zap.Int("duration_minutes", duration))
	}

	ev, err := r.store.Append(ctx, d)
	if err != nil {
		return appended, err
	}
	r.open[kind] = anchor{id: ev.ID, at: ev.Timestamp}
	return append(appended, ev), nil
}

// recordEndLocked closes the open session the end event matches. An end
// with no open session is stored anyway, flagged as an orphan: it is
// recorded and queryable, never an error.
func (r *Reconciler) recordEndLocked(ctx context.Context, d care.Draft) ([]care.Event, error) {
	kind, prev, found := r.matchOpenLocked(d.Type.EndKinds())
	if !found {
		d.Orphan = true
		d.DurationMinutes = nil
		ev, err := r.store.Append(ctx, d)
		if err != nil {
			return nil, err
		}
		r.log.Warn("orphan end event recorded",
			zap.String("type", string(d.Type)),
			zap.Time("at", d.Timestamp))
		return []care.Event{ev}, nil
	}

	duration := care.DurationMinutes(prev.at, d.Timestamp)
	d.DurationMinutes = &duration
	ev, err := r.store.Append(ctx, d)
	if err != nil {
		return nil, err
	}
	delete(r.open, kind)
	return []care.Event{ev}, nil
}

// matchOpenLocked picks which open session an end event closes. A
// feeding end can match either side; the most recently started open
// side wins.
func (r *Reconciler) matchOpenLocked(kinds []care.SessionKind) (care.SessionKind, anchor, bool) {
	var (
		best       care.SessionKind
		bestAnchor anchor
		found      bool
	)
	for _, kind := range kinds {
		a, isOpen := r.open[kind]
		if !isOpen {
			continue
		}
		if !found || a.at.After(bestAnchor.at) {
			best, bestAnchor, found = kind, a, true
		}
	}
	return best, bestAnchor, found
}

// OpenSessions returns the kinds currently open with their start times.
func (r *Reconciler) OpenSessions() map[care.SessionKind]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[care.SessionKind]time.Time, len(r.open))
	for kind, a := range r.open {
		out[kind] = a.at
	}
	return out
}
