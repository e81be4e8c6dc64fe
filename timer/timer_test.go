package timer

import (
	"testing"
	"time"

	"tonic"
	"tonic/distill"
)

var ownerClass = &tonic.Class{Name: "owner"}

func newOwner(t *testing.T, h *distill.Harness) tonic.Registrant {
	t.Helper()
	owner, err := h.Brew(ownerClass, nil)
	if err != nil {
		t.Fatalf("brew owner: %v", err)
	}
	return owner
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSingleShotFiresThenFinishes(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	fired := 0
	tm, err := SingleShot(owner, time.Hour, func() { fired++ })
	if err != nil {
		t.Fatalf("SingleShot: %v", err)
	}

	// Drive the tick by hand; the real driver sleeps for an hour.
	tm.Internal(opFire, nil)
	h.StepAll(0)

	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if _, err := h.Lookup(tm.ID()); err == nil {
		t.Fatal("single-shot timer still registered after firing")
	}
	if got := len(owner.Core().Bindings()); got != 0 {
		t.Fatalf("owner bindings = %d, want 0", got)
	}
}

func TestSingleShotFiresOnItsOwn(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	fired := 0
	if _, err := SingleShot(owner, 5*time.Millisecond, func() { fired++ }); err != nil {
		t.Fatalf("SingleShot: %v", err)
	}

	waitFor(t, func() bool { return h.Pending() > 0 })
	h.StepAll(0)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestRepeatFiresOnItsOwn(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	fired := 0
	if _, err := Repeat(owner, 3*time.Millisecond, func() { fired++ }); err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	waitFor(t, func() bool {
		h.StepAll(0)
		return fired >= 2
	})
}

func TestRepeatPauseAndResume(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	fired := 0
	tm, err := Repeat(owner, time.Hour, func() { fired++ })
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	tm.Internal(opFire, nil)
	tm.Internal(opFire, nil)
	h.StepAll(0)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}

	tm.Pause()
	tm.Internal(opFire, nil)
	tm.Internal(opFire, nil)
	h.StepAll(0)
	if fired != 2 {
		t.Fatalf("fired while paused = %d, want 2", fired)
	}

	tm.Resume()
	tm.Internal(opFire, nil)
	h.StepAll(0)
	if fired != 3 {
		t.Fatalf("fired after resume = %d, want 3", fired)
	}
}

func TestTimerValidation(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	if _, err := SingleShot(owner, 0, func() {}); err == nil {
		t.Fatal("zero duration accepted")
	}
	if _, err := Repeat(owner, time.Second, nil); err == nil {
		t.Fatal("nil callback accepted")
	}
}

func TestFinishStopsDriver(t *testing.T) {
	t.Parallel()
	h := distill.New()
	owner := newOwner(t, h)

	tm, err := Repeat(owner, time.Hour, func() {})
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	tm.Finish()
	h.StepAll(0)

	select {
	case <-tm.stop:
	default:
		t.Fatal("stop channel still open after finish")
	}
	if _, err := h.Lookup(tm.ID()); err == nil {
		t.Fatal("timer still registered after finish")
	}
}
