package notify_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/aura/internal/notify"
	"github.com/MrWong99/aura/internal/notify/mock"
)

func TestFanout(t *testing.T) {
	t.Parallel()
	a, b := &mock.Notifier{}, &mock.Notifier{}
	f := notify.Fanout{a, b}

	f.Volume(0.5)
	f.MemoryUpdated()
	f.Error("boom")
	f.Closed()

	for _, n := range []*mock.Notifier{a, b} {
		vols, errs, closed, mem := n.Snapshot()
		if len(vols) != 1 || vols[0] != 0.5 || len(errs) != 1 || errs[0] != "boom" || closed != 1 || mem != 1 {
			t.Errorf("member got vols=%v errs=%v closed=%d mem=%d", vols, errs, closed, mem)
		}
	}
}

func TestTransient_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	var changes atomic.Int32
	tr := notify.NewTransient(30*time.Millisecond, func() { changes.Add(1) })

	tr.Show("Failed to connect.")
	if v, ok := tr.Current(); !ok || v != "Failed to connect." {
		t.Fatalf("Current() = %q, %v", v, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := tr.Current(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("value never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := changes.Load(); got != 2 {
		t.Errorf("onChange calls = %d, want 2 (show + expire)", got)
	}
}

func TestTransient_NewValueReplacesAndRestartsTimer(t *testing.T) {
	t.Parallel()
	tr := notify.NewTransient(80*time.Millisecond, nil)

	tr.Show("first")
	time.Sleep(50 * time.Millisecond)
	tr.Show("second")
	// The first timer would have fired by now; the second must still hold.
	time.Sleep(50 * time.Millisecond)

	if v, ok := tr.Current(); !ok || v != "second" {
		t.Errorf("Current() = %q, %v; want second, true", v, ok)
	}
}

func TestTransient_Dismiss(t *testing.T) {
	t.Parallel()
	var changes atomic.Int32
	tr := notify.NewBanner(func() { changes.Add(1) })

	tr.Dismiss()
	if changes.Load() != 0 {
		t.Error("dismissing an empty banner should not signal a change")
	}
	tr.Show("x")
	tr.Dismiss()
	if _, ok := tr.Current(); ok {
		t.Error("banner still shown after Dismiss")
	}
	if changes.Load() != 2 {
		t.Errorf("changes = %d, want 2", changes.Load())
	}
}
