package tonic

import (
	"fmt"
	"sync/atomic"

	"tonic/internal/check"
)

const (
	stateNone int32 = -1
	stateHalt int32 = -2
)

// Runtime-generated system operations.
const (
	opFinished        = "on_finished"
	opFinishDrive     = "finish"
	opBindingFinished = "binding_finished"
)

// Tonic is the stateful dispatch core behind every class instance. It
// resolves operation calls against its class table using the state at the
// moment of the call, queues them on its catalyst, and applies the state
// transition a handler requested after the handler returns.
//
// Only the owning catalyst's goroutine touches the pending transition; the
// current state and the finishing flag are atomic so any goroutine may call
// operations or Finish.
type Tonic struct {
	*Essence
	class *Class
	table *dispatch

	state     atomic.Int32
	finishing atomic.Bool

	// Catalyst goroutine only.
	pending    int32
	pendingSet bool
}

func (t *Tonic) tonicCore() *Tonic { return t }

// tonicCarrier lets the catalyst reach the tonic core of any registrant
// built on Tonic, through embedding promotion.
type tonicCarrier interface{ tonicCore() *Tonic }

func asTonic(r Registrant) *Tonic {
	if tc, ok := r.(tonicCarrier); ok {
		return tc.tonicCore()
	}
	return nil
}

// Class returns the class this instance was built from.
func (t *Tonic) Class() *Class { return t.class }

// State returns the current state name, "none" when the machine holds no
// state.
func (t *Tonic) State() string { return t.table.stateName(t.state.Load()) }

// InFinishing reports whether Finish has been called. Once true, queued
// non-system operations are dropped at dispatch.
func (t *Tonic) InFinishing() bool { return t.finishing.Load() }

// Command enqueues the command handler resolved for the current state.
func (t *Tonic) Command(name string, payload any) { t.call(name, Command, payload) }

// Event enqueues the event handler resolved for the current state.
func (t *Tonic) Event(name string, payload any) { t.call(name, Event, payload) }

// Internal enqueues the internal handler resolved for the current state.
func (t *Tonic) Internal(name string, payload any) { t.call(name, Internal, payload) }

// call resolves at enqueue time: the handler slot is chosen by the state
// the tonic is in right now, not the state it will be in at execution.
func (t *Tonic) call(name string, cat Category, payload any) {
	h, ok := t.table.resolve(name, cat, t.state.Load())
	if !ok {
		check.Assertf(false, "class %s: undeclared %s %q", t.class.Name, cat.String(), name)
		t.logger().Debug("dropping undeclared operation",
			"essence", t.id, "class", t.class.Name, "op", name, "category", cat.String())
		return
	}
	t.catalyst.enqueue(workItem{
		target:   t.id,
		op:       name,
		category: cat,
		handler:  h,
		payload:  payload,
	})
}

// system enqueues a runtime item that bypasses the finishing filter.
func (t *Tonic) system(name string, h Handler, payload any) {
	t.catalyst.enqueue(workItem{
		target:   t.id,
		op:       name,
		category: System,
		handler:  h,
		payload:  payload,
	})
}

// ToState requests a transition to be applied after the running handler
// returns. Only the last request before return takes effect. Unknown names
// leave the pending request unchanged.
func (t *Tonic) ToState(name string) {
	idx, ok := t.table.stateIndex(name)
	if !ok {
		t.logger().Debug("ignoring transition to unknown state",
			"essence", t.id, "class", t.class.Name, "state", name)
		return
	}
	t.pending = idx
	t.pendingSet = true
}

// ToHalt requests the halt transition: exit hooks run, no state is entered,
// and the machine holds no state afterwards.
func (t *Tonic) ToHalt() {
	t.pending = stateHalt
	t.pendingSet = true
}

func (t *Tonic) clearPending() {
	t.pending = 0
	t.pendingSet = false
}

// settle applies the pending transition after a handler returned cleanly:
// global exit, old-state exit, commit, new-state enter, global enter. The
// halt sentinel stops after the exits with the machine holding no state.
// Hook failures are logged and do not block the commit.
func (t *Tonic) settle() {
	if !t.pendingSet {
		return
	}
	next := t.pending
	t.clearPending()

	cur := t.state.Load()
	if next == cur {
		return
	}
	halt := next == stateHalt
	if halt && cur == stateNone {
		return
	}

	t.runHook(t.class.OnExit, "on_exit")
	if cur != stateNone {
		t.runHook(t.table.exit[cur], "exit:"+t.table.stateName(cur))
	}
	if halt {
		t.state.Store(stateNone)
		t.logger().Debug("state machine halted", "essence", t.id, "class", t.class.Name)
		return
	}
	t.state.Store(next)
	if next != stateNone {
		t.runHook(t.table.enter[next], "enter:"+t.table.stateName(next))
	}
	t.runHook(t.class.OnEnter, "on_enter")
}

func (t *Tonic) runHook(h Handler, label string) {
	if h == nil {
		return
	}
	if err := safeCall(h, t.registrant(), nil); err != nil {
		t.logger().Error("transition hook failed",
			"essence", t.id, "class", t.class.Name, "hook", label, "error", err)
	}
}

// Finish switches the tonic to finishing mode and queues the two system
// items that complete teardown: the user finished hook, then the driver
// that runs the essence finish cascade. Idempotent and callable from any
// goroutine.
func (t *Tonic) Finish() {
	if !t.finishing.CompareAndSwap(false, true) {
		return
	}
	t.system(opFinished, func(r Registrant, _ any) error {
		if t.class.OnFinished == nil {
			return nil
		}
		return t.class.OnFinished(r, nil)
	}, nil)
	t.system(opFinishDrive, func(Registrant, any) error {
		t.Essence.Finish()
		return nil
	}, nil)
}

// BindingFinished defers the completion report to the catalyst queue so the
// user hook and the bookkeeping run on the owning goroutine. System
// category: it must execute while the tonic itself is finishing.
func (t *Tonic) BindingFinished(child Registrant) {
	t.system(opBindingFinished, func(r Registrant, payload any) error {
		ch := payload.(Registrant)
		var err error
		if t.class.OnBindingFinished != nil {
			err = t.class.OnBindingFinished(r, ch)
		}
		t.Essence.BindingFinished(ch)
		return err
	}, child)
}

// safeCall invokes h, converting a panic into an error so a faulting
// handler degrades one operation instead of the engine.
func safeCall(h Handler, target Registrant, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(target, payload)
}
