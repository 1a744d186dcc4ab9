package dispatch

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	d := New(zap.NewNop(), 4)
	defer d.Close()

	a := d.Subscribe()
	b := d.Subscribe()

	ev := care.Event{ID: "ev-1", Type: care.DiaperPee}
	d.Publish(ev)

	for _, sub := range []*Subscriber{a, b} {
		select {
		case got := <-sub.C:
			if got.ID != "ev-1" {
				t.Errorf("got event %q, want ev-1", got.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive published event")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	d := New(zap.NewNop(), 2)
	defer d.Close()

	slow := d.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Publish(care.Event{Type: care.DiaperPee})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := d.Dropped(slow); got != 8 {
		t.Errorf("dropped = %d, want 8 (queue of 2, 10 published)", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	d := New(zap.NewNop(), 4)
	sub := d.Subscribe()

	d.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Safe to call again.
	d.Unsubscribe(sub)

	// Publishing after unsubscribe must not panic on the closed channel.
	d.Publish(care.Event{Type: care.DiaperPee})
}

func TestCloseUnregistersEveryone(t *testing.T) {
	d := New(zap.NewNop(), 4)
	a := d.Subscribe()
	b := d.Subscribe()

	d.Close()
	for _, sub := range []*Subscriber{a, b} {
		if _, ok := <-sub.C; ok {
			t.Error("channel should be closed after dispatcher Close")
		}
	}
}
