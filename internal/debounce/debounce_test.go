package debounce

import (
	"testing"
	"time"
)

func TestAdmitWithinWindow(t *testing.T) {
	f := New(2 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if !f.Admit("0x0015", "single", base) {
		t.Fatal("first message should be admitted")
	}
	if f.Admit("0x0015", "single", base.Add(500*time.Millisecond)) {
		t.Error("repeat at 500ms should be suppressed")
	}
	if f.Admit("0x0015", "single", base.Add(1999*time.Millisecond)) {
		t.Error("repeat just inside window should be suppressed")
	}
	if !f.Admit("0x0015", "single", base.Add(2*time.Second)) {
		t.Error("message at exactly the window boundary should be admitted")
	}
}

func TestWindowAnchorsOnLastAdmitted(t *testing.T) {
	f := New(2 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	f.Admit("dev", "single", base)
	f.Admit("dev", "single", base.Add(1500*time.Millisecond)) // suppressed
	// 1.9s after the suppressed message but only 3.4s after the admitted
	// one: window anchors on the admitted message, so this passes.
	if !f.Admit("dev", "single", base.Add(3400*time.Millisecond)) {
		t.Error("window should anchor on the last admitted message, not on suppressed ones")
	}
}

func TestPairsAreIndependent(t *testing.T) {
	f := New(2 * time.Second)
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if !f.Admit("0x0015", "single", at) {
		t.Error("first device should be admitted")
	}
	if !f.Admit("0x0016", "single", at) {
		t.Error("different device at the same instant should be admitted")
	}
	if !f.Admit("0x0015", "double", at.Add(100*time.Millisecond)) {
		t.Error("different action on the same device should be admitted")
	}
}

func TestLazyPruneBoundsMap(t *testing.T) {
	f := New(2 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	f.Admit("a", "single", base)
	f.Admit("b", "single", base.Add(100*time.Millisecond))
	f.Admit("c", "single", base.Add(200*time.Millisecond))
	if got := f.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	// A new admit well past the window prunes the stale entries.
	f.Admit("d", "single", base.Add(10*time.Second))
	if got := f.Len(); got != 1 {
		t.Errorf("Len() after prune = %d, want 1", got)
	}
}

func TestZeroWindowFallsBackToDefault(t *testing.T) {
	f := New(0)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	f.Admit("dev", "single", base)
	if f.Admit("dev", "single", base.Add(DefaultWindow-time.Millisecond)) {
		t.Error("default window should apply when none is configured")
	}
}
