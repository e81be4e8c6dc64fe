// Package timer provides timer essences: bound tonics whose callbacks run
// on the owner's catalyst goroutine, so timer-driven code is as
// single-threaded as everything else on that catalyst. Each timer owns one
// driving goroutine; the goroutine only enqueues, it never touches state.
package timer

import (
	"fmt"
	"time"

	"tonic"
)

const (
	opFire   = "fire"
	opPause  = "pause"
	opResume = "resume"
)

// Timer is a bound one-shot or repeating timer. It finishes like any other
// essence; finishing stops the driving goroutine and drops late ticks.
type Timer struct {
	*tonic.Tonic
	d    time.Duration
	fire func()
	stop chan struct{}

	// Catalyst goroutine only.
	paused bool
}

// SingleShot binds a timer to owner that calls fire once, on owner's
// catalyst goroutine, d after construction, then finishes itself.
func SingleShot(owner tonic.Registrant, d time.Duration, fire func()) (*Timer, error) {
	if err := validate(d, fire); err != nil {
		return nil, err
	}
	r, err := owner.Core().Bind(SingleShotClass, tonic.Params{"duration": d, "fire": fire})
	if err != nil {
		return nil, err
	}
	return r.(*Timer), nil
}

// Repeat binds a timer to owner that calls fire every d until finished.
func Repeat(owner tonic.Registrant, d time.Duration, fire func()) (*Timer, error) {
	if err := validate(d, fire); err != nil {
		return nil, err
	}
	r, err := owner.Core().Bind(RepeatClass, tonic.Params{"duration": d, "fire": fire})
	if err != nil {
		return nil, err
	}
	return r.(*Timer), nil
}

func validate(d time.Duration, fire func()) error {
	if d <= 0 {
		return fmt.Errorf("timer: duration must be positive, got %v", d)
	}
	if fire == nil {
		return fmt.Errorf("timer: fire callback is required")
	}
	return nil
}

// Pause suppresses ticks until Resume. Queued as a command, so it takes
// effect in queue order relative to pending ticks.
func (tm *Timer) Pause() { tm.Command(opPause, nil) }

// Resume lifts a pause.
func (tm *Timer) Resume() { tm.Command(opResume, nil) }

// SingleShotClass fires once and finishes. Construction params: "duration"
// (time.Duration) and "fire" (func()).
var SingleShotClass = &tonic.Class{
	Name:       "timer.single",
	New:        newTimer,
	OnStart:    startSingle,
	OnFinished: stopTimer,
	Ops: []tonic.Op{
		{Name: opFire, Category: tonic.Internal, Do: fireOnce},
	},
}

// RepeatClass fires every period until finished; Pause and Resume gate the
// callback without stopping the ticker. Same construction params as
// SingleShotClass.
var RepeatClass = &tonic.Class{
	Name:       "timer.repeat",
	New:        newTimer,
	OnStart:    startRepeat,
	OnFinished: stopTimer,
	Ops: []tonic.Op{
		{Name: opFire, Category: tonic.Internal, Do: fireRepeat},
		{Name: opPause, Category: tonic.Command, Do: pauseTimer},
		{Name: opResume, Category: tonic.Command, Do: resumeTimer},
	},
}

func newTimer(t *tonic.Tonic) tonic.Registrant {
	tm := &Timer{Tonic: t, stop: make(chan struct{})}
	p := t.Params()
	if d, ok := p["duration"].(time.Duration); ok {
		tm.d = d
	}
	if fire, ok := p["fire"].(func()); ok {
		tm.fire = fire
	}
	return tm
}

func startSingle(r tonic.Registrant, _ any) error {
	tm := r.(*Timer)
	if err := validate(tm.d, tm.fire); err != nil {
		return err
	}
	go tm.runSingle()
	return nil
}

func startRepeat(r tonic.Registrant, _ any) error {
	tm := r.(*Timer)
	if err := validate(tm.d, tm.fire); err != nil {
		return err
	}
	go tm.runRepeat()
	return nil
}

func stopTimer(r tonic.Registrant, _ any) error {
	close(r.(*Timer).stop)
	return nil
}

func (tm *Timer) runSingle() {
	t := time.NewTimer(tm.d)
	defer t.Stop()
	select {
	case <-tm.stop:
	case <-tm.Catalyst().Done():
	case <-t.C:
		tm.Internal(opFire, nil)
	}
}

func (tm *Timer) runRepeat() {
	tk := time.NewTicker(tm.d)
	defer tk.Stop()
	for {
		select {
		case <-tm.stop:
			return
		case <-tm.Catalyst().Done():
			return
		case <-tk.C:
			tm.Internal(opFire, nil)
		}
	}
}

func fireOnce(r tonic.Registrant, _ any) error {
	tm := r.(*Timer)
	tm.fire()
	tm.Finish()
	return nil
}

func fireRepeat(r tonic.Registrant, _ any) error {
	tm := r.(*Timer)
	if tm.paused {
		return nil
	}
	tm.fire()
	return nil
}

func pauseTimer(r tonic.Registrant, _ any) error {
	r.(*Timer).paused = true
	return nil
}

func resumeTimer(r tonic.Registrant, _ any) error {
	r.(*Timer).paused = false
	return nil
}
