package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/store"
)

// fakeStore records appends in memory and serves FindOpenSession from a
// preset map, mirroring the store's contract closely enough for the
// state machine.
type fakeStore struct {
	appended []care.Event
	open     map[care.SessionKind]*care.Event
	failNext error
}

func (f *fakeStore) Append(ctx context.Context, d care.Draft) (care.Event, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return care.Event{}, err
	}
	if !d.Type.Valid() {
		return care.Event{}, fmt.Errorf("%w: unknown event type %q", store.ErrValidation, d.Type)
	}
	ev := care.Event{
		ID:              fmt.Sprintf("ev-%d", len(f.appended)+1),
		Type:            d.Type,
		Timestamp:       d.Timestamp,
		DurationMinutes: d.DurationMinutes,
		Notes:           d.Notes,
		DeviceSource:    d.DeviceSource,
		AutoClosed:      d.AutoClosed,
		Orphan:          d.Orphan,
	}
	f.appended = append(f.appended, ev)
	return ev, nil
}

func (f *fakeStore) FindOpenSession(ctx context.Context, kind care.SessionKind) (*care.Event, error) {
	return f.open[kind], nil
}

func newTestReconciler(t *testing.T, autoClose bool) (*Reconciler, *fakeStore) {
	t.Helper()
	fs := &fakeStore{}
	r := New(fs, zap.NewNop(), autoClose)
	return r, fs
}

func record(t *testing.T, r *Reconciler, d care.Draft) []care.Event {
	t.Helper()
	events, err := r.Record(context.Background(), d)
	if err != nil {
		t.Fatalf("record %s: %v", d.Type, err)
	}
	return events
}

func TestFeedingSessionDuration(t *testing.T) {
	r, _ := newTestReconciler(t, true)
	start := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	record(t, r, care.Draft{Type: care.FeedingStartLeft, Timestamp: start})
	events := record(t, r, care.Draft{Type: care.FeedingEnd, Timestamp: start.Add(17 * time.Minute)})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	end := events[0]
	if end.DurationMinutes == nil || *end.DurationMinutes != 17 {
		t.Errorf("duration = %v, want 17", end.DurationMinutes)
	}
	if end.Orphan || end.AutoClosed {
		t.Errorf("normal end flagged: %+v", end)
	}
	if open := r.OpenSessions(); len(open) != 0 {
		t.Errorf("open sessions after end = %v, want none", open)
	}
}

func TestFeedingEndClosesMostRecentSide(t *testing.T) {
	r, _ := newTestReconciler(t, true)
	base := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

	record(t, r, care.Draft{Type: care.FeedingStartLeft, Timestamp: base})
	record(t, r, care.Draft{Type: care.FeedingStartRight, Timestamp: base.Add(10 * time.Minute)})
	record(t, r, care.Draft{Type: care.FeedingEnd, Timestamp: base.Add(20 * time.Minute)})

	open := r.OpenSessions()
	if _, stillOpen := open[care.KindFeedingRight]; stillOpen {
		t.Error("right side should have been closed (most recently started)")
	}
	if _, stillOpen := open[care.KindFeedingLeft]; !stillOpen {
		t.Error("left side should remain open")
	}
}

func TestOrphanEnd(t *testing.T) {
	r, fs := newTestReconciler(t, true)
	at := time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC)

	events := record(t, r, care.Draft{Type: care.SleepEnd, Timestamp: at})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if !ev.Orphan {
		t.Error("end with no open session should be flagged orphan")
	}
	if ev.DurationMinutes != nil {
		t.Errorf("orphan end has duration %v, want nil", *ev.DurationMinutes)
	}
	if len(fs.appended) != 1 {
		t.Errorf("store has %d events, want 1 (orphan is stored, not dropped)", len(fs.appended))
	}
}

func TestDoubleStartAutoClosesExactlyOne(t *testing.T) {
	r, fs := newTestReconciler(t, true)
	base := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)

	record(t, r, care.Draft{Type: care.SleepStart, Timestamp: base})
	events := record(t, r, care.Draft{Type: care.SleepStart, Timestamp: base.Add(3 * time.Hour), DeviceSource: "0x0015"})

	if len(events) != 2 {
		t.Fatalf("second start appended %d events, want 2 (auto-close then start)", len(events))
	}
	closeEv, startEv := events[0], events[1]
	if closeEv.Type != care.SleepEnd || !closeEv.AutoClosed {
		t.Errorf("first appended event = %+v, want auto-closed sleep_end", closeEv)
	}
	if closeEv.DurationMinutes == nil || *closeEv.DurationMinutes != 180 {
		t.Errorf("auto-close duration = %v, want 180", closeEv.DurationMinutes)
	}
	if closeEv.DeviceSource != "0x0015" {
		t.Errorf("auto-close device source = %q, want the triggering device", closeEv.DeviceSource)
	}
	if startEv.Type != care.SleepStart {
		t.Errorf("second appended event = %+v, want sleep_start", startEv)
	}
	if len(fs.appended) != 3 {
		t.Errorf("store has %d events, want 3 (exactly one auto-close)", len(fs.appended))
	}

	open := r.OpenSessions()
	if at, ok := open[care.KindSleep]; !ok || !at.Equal(base.Add(3*time.Hour)) {
		t.Errorf("open sleep session = %v, want the second start time", open)
	}
}

func TestDoubleStartRejectedWhenAutoCloseDisabled(t *testing.T) {
	r, fs := newTestReconciler(t, false)
	base := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)

	record(t, r, care.Draft{Type: care.SleepStart, Timestamp: base})
	_, err := r.Record(context.Background(), care.Draft{Type: care.SleepStart, Timestamp: base.Add(time.Hour)})
	if !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("second start: err = %v, want ErrSessionOpen", err)
	}
	if len(fs.appended) != 1 {
		t.Errorf("store has %d events, want 1 (rejected start not persisted)", len(fs.appended))
	}
}

func TestAtomicEventsBypassStateMachine(t *testing.T) {
	r, _ := newTestReconciler(t, true)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	record(t, r, care.Draft{Type: care.SleepStart, Timestamp: at})
	events := record(t, r, care.Draft{Type: care.DiaperBoth, Timestamp: at.Add(time.Minute)})

	if len(events) != 1 || events[0].Type != care.DiaperBoth {
		t.Fatalf("diaper append = %+v, want one diaper_both", events)
	}
	if _, ok := r.OpenSessions()[care.KindSleep]; !ok {
		t.Error("diaper event must not disturb the open sleep session")
	}
}

func TestInvalidTypeSurfacesStoreError(t *testing.T) {
	r, _ := newTestReconciler(t, true)

	_, err := r.Record(context.Background(), care.Draft{Type: "bath_time"})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("invalid type: err = %v, want store.ErrValidation", err)
	}
}

func TestZeroTimestampDefaultsToNow(t *testing.T) {
	r, fs := newTestReconciler(t, true)
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	record(t, r, care.Draft{Type: care.SleepStart})
	if !fs.appended[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want clock time %v", fs.appended[0].Timestamp, fixed)
	}
}

func TestInitRecoversOpenSessions(t *testing.T) {
	fs := &fakeStore{open: map[care.SessionKind]*care.Event{
		care.KindSleep: {ID: "ev-open", Type: care.SleepStart,
			Timestamp: time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)},
	}}
	r := New(fs, zap.NewNop(), true)
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	// Ending the recovered session computes its duration from the
	// recovered start.
	events := record(t, r, care.Draft{Type: care.SleepEnd,
		Timestamp: time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)})
	ev := events[0]
	if ev.Orphan {
		t.Error("end of recovered session flagged orphan")
	}
	if ev.DurationMinutes == nil || *ev.DurationMinutes != 90 {
		t.Errorf("duration = %v, want 90", ev.DurationMinutes)
	}
}

func TestAppendFailureDoesNotOpenSession(t *testing.T) {
	r, fs := newTestReconciler(t, true)
	fs.failNext = errors.New("disk full")

	_, err := r.Record(context.Background(), care.Draft{Type: care.SleepStart,
		Timestamp: time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)})
	if err == nil {
		t.Fatal("expected append error")
	}
	if len(r.OpenSessions()) != 0 {
		t.Error("failed start must not leave a session open")
	}
}
