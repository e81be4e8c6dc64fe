package tonic

import (
	"errors"
	"fmt"
	"testing"
)

// --- fakes ---

// recorder is the workhorse test tonic: it journals handler invocations and
// integer payloads in arrival order.
type recorder struct {
	*Tonic
	calls []string
	seen  []int
}

func newRecorder(t *Tonic) Registrant { return &recorder{Tonic: t} }

func mark(label string) Handler {
	return func(target Registrant, payload any) error {
		r := target.(*recorder)
		r.calls = append(r.calls, label)
		if n, ok := payload.(int); ok {
			r.seen = append(r.seen, n)
		}
		return nil
	}
}

func gotoState(target Registrant, payload any) error {
	target.(*recorder).ToState(payload.(string))
	return nil
}

func TestOperationsRunOnceInEnqueueOrder(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{
		Name: "rec",
		Ops:  []Op{{Name: "note", Category: Command, Do: mark("note")}},
		New:  newRecorder,
	}
	inst, err := New(l, c, cls, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r := inst.(*recorder)

	r.Command("note", 1)
	r.Command("note", 2)
	r.Command("note", 3)
	drain(t, c)

	if got, want := fmt.Sprint(r.seen), "[1 2 3]"; got != want {
		t.Fatalf("seen = %v, want %v", got, want)
	}
	if len(r.calls) != 3 {
		t.Fatalf("calls = %v, want exactly three", r.calls)
	}
}

func TestStateOverrideBeatsGenericHandler(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{
		Name:   "mach",
		States: []State{{Name: "busy"}, {Name: "idle"}},
		Ops: []Op{
			{Name: "poke", Category: Command, Do: mark("generic")},
			{Name: "poke", Category: Command, State: "busy", Do: mark("busy")},
			{Name: "go", Category: Command, Do: gotoState},
		},
		New: newRecorder,
	}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("poke", nil)
	drain(t, c)
	r.Command("go", "busy")
	drain(t, c)
	r.Command("poke", nil)
	drain(t, c)
	r.Command("go", "idle")
	drain(t, c)
	r.Command("poke", nil)
	drain(t, c)

	if got := fmt.Sprint(r.calls); got != "[generic busy generic]" {
		t.Fatalf("calls = %v, want [generic busy generic]", r.calls)
	}
	if r.State() != "idle" {
		t.Fatalf("state = %q, want idle", r.State())
	}
}

func TestResolutionUsesStateAtCallMoment(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{
		Name:   "mach",
		States: []State{{Name: "busy"}},
		Ops: []Op{
			{Name: "poke", Category: Command, Do: mark("generic")},
			{Name: "poke", Category: Command, State: "busy", Do: mark("busy")},
			{Name: "go", Category: Command, Do: gotoState},
		},
		New: newRecorder,
	}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	// Both enqueued before anything runs: poke resolves against the state
	// at call time (none), even though it executes after the transition.
	r.Command("go", "busy")
	r.Command("poke", nil)
	drain(t, c)

	if got := fmt.Sprint(r.calls); got != "[generic]" {
		t.Fatalf("calls = %v, want [generic]", r.calls)
	}
	if r.State() != "busy" {
		t.Fatalf("state = %q, want busy", r.State())
	}
}

func TestDeclaredNoOpSlotConsumesItem(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{
		Name:   "mach",
		States: []State{{Name: "busy"}},
		Ops: []Op{
			// Declared only for busy: every other state gets a no-op slot.
			{Name: "poke", Category: Command, State: "busy", Do: mark("busy")},
		},
		New: newRecorder,
	}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("poke", nil)
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 (no-op slots still queue)", c.Pending())
	}
	drain(t, c)
	if len(r.calls) != 0 {
		t.Fatalf("calls = %v, want none", r.calls)
	}
}

func TestUndeclaredOperationIsDropped(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{Name: "rec", New: newRecorder}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("nosuch", nil)
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 (undeclared ops never queue)", c.Pending())
	}
}

func TestCategoriesResolveIndependently(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := &Class{
		Name: "rec",
		Ops: []Op{
			{Name: "ping", Category: Command, Do: mark("cmd")},
			{Name: "ping", Category: Event, Do: mark("evt")},
		},
		New: newRecorder,
	}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Event("ping", nil)
	r.Command("ping", nil)
	r.Internal("ping", nil) // undeclared for internal: dropped
	drain(t, c)

	if got := fmt.Sprint(r.calls); got != "[evt cmd]" {
		t.Fatalf("calls = %v, want [evt cmd]", r.calls)
	}
}

func transitionClass(name string) *Class {
	return &Class{
		Name: name,
		States: []State{
			{Name: "a", Enter: mark("enter:a"), Exit: mark("exit:a")},
			{Name: "b", Enter: mark("enter:b"), Exit: mark("exit:b")},
		},
		Ops: []Op{
			{Name: "run", Category: Command, Do: nil}, // filled per test via wrap
		},
		OnEnter: mark("enter:*"),
		OnExit:  mark("exit:*"),
		New:     newRecorder,
	}
}

// wrapRun rebuilds the transition class with the given handler as its only
// command, keeping the hook layout identical across transition tests.
func wrapRun(name string, do Handler) *Class {
	cls := transitionClass(name)
	cls.Ops = []Op{{Name: "run", Category: Command, Do: do}}
	return cls
}

func TestTransitionHookOrder(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := wrapRun("hooks", func(target Registrant, _ any) error {
		target.(*recorder).ToState("a")
		return nil
	})
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("run", nil)
	drain(t, c)

	// From no state: global exit, commit, state enter, global enter.
	if got := fmt.Sprint(r.calls); got != "[exit:* enter:a enter:*]" {
		t.Fatalf("calls = %v, want [exit:* enter:a enter:*]", r.calls)
	}

	r.calls = nil
	r.Command("run", nil) // a -> a requested again: same state, no hooks
	drain(t, c)
	if len(r.calls) != 0 {
		t.Fatalf("same-state transition ran hooks: %v", r.calls)
	}
}

func TestTransitionCoalescingLastRequestWins(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := wrapRun("coalesce", func(target Registrant, _ any) error {
		r := target.(*recorder)
		r.ToState("a")
		r.ToState("b")
		return nil
	})
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("run", nil)
	drain(t, c)

	if got := fmt.Sprint(r.calls); got != "[exit:* enter:b enter:*]" {
		t.Fatalf("calls = %v, want only the second target's hooks, got %v", got, r.calls)
	}
	if r.State() != "b" {
		t.Fatalf("state = %q, want b", r.State())
	}
}

func TestHaltRunsExitsOnly(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := wrapRun("halt", func(target Registrant, payload any) error {
		r := target.(*recorder)
		if payload == nil {
			r.ToState("b")
			return nil
		}
		r.ToHalt()
		return nil
	})
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("run", nil)
	drain(t, c)
	r.calls = nil

	r.Command("run", "halt")
	drain(t, c)

	if got := fmt.Sprint(r.calls); got != "[exit:* exit:b]" {
		t.Fatalf("calls = %v, want [exit:* exit:b]", r.calls)
	}
	if r.State() != "none" {
		t.Fatalf("state = %q, want none", r.State())
	}
}

func TestUnknownStateRequestIsIgnored(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := wrapRun("unknown", func(target Registrant, _ any) error {
		r := target.(*recorder)
		r.ToState("a")
		r.ToState("zzz") // ignored: the pending request stays on a
		return nil
	})
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("run", nil)
	drain(t, c)

	if r.State() != "a" {
		t.Fatalf("state = %q, want a (unknown target must not disturb pending)", r.State())
	}
}

func TestFailedHandlerDiscardsTransition(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	cls := wrapRun("failer", func(target Registrant, payload any) error {
		r := target.(*recorder)
		r.ToState("a")
		if payload == "panic" {
			panic("boom")
		}
		return errors.New("boom")
	})
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("run", nil)
	drain(t, c)
	if r.State() != "none" || len(r.calls) != 0 {
		t.Fatalf("state = %q calls = %v, want untouched machine after error", r.State(), r.calls)
	}

	r.Command("run", "panic")
	drain(t, c)
	if r.State() != "none" || len(r.calls) != 0 {
		t.Fatalf("state = %q calls = %v, want untouched machine after panic", r.State(), r.calls)
	}
}

func TestStartHooksRunSynchronouslyOnce(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	starts := 0
	cls := &Class{
		Name: "rec",
		OnStart: func(Registrant, any) error {
			starts++
			return nil
		},
		New: newRecorder,
	}
	if _, err := New(l, c, cls, nil); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if starts != 1 {
		t.Fatalf("start hook ran %d times before any dispatch, want 1", starts)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 (start hooks are not queued)", c.Pending())
	}
}

func TestFinishingFilterDropsQueuedWork(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	finished := false
	cls := &Class{
		Name: "rec",
		Ops:  []Op{{Name: "note", Category: Command, Do: mark("note")}},
		OnFinished: func(Registrant, any) error {
			finished = true
			return nil
		},
		New: newRecorder,
	}
	inst, _ := New(l, c, cls, nil)
	r := inst.(*recorder)

	r.Command("note", 1) // queued before finish, still dropped
	r.Finish()
	r.Command("note", 2) // queued after finish, dropped
	drain(t, c)

	if len(r.seen) != 0 {
		t.Fatalf("seen = %v, want none once finishing", r.seen)
	}
	if !finished {
		t.Fatal("system finished hook did not run")
	}
	if _, err := l.Lookup(r.ID()); !errors.Is(err, ErrEssenceNotFound) {
		t.Fatalf("lookup after teardown error = %v, want ErrEssenceNotFound", err)
	}
}

func TestTonicFinishIsIdempotent(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	inst, _ := New(l, c, &Class{Name: "rec", New: newRecorder}, nil)
	r := inst.(*recorder)

	r.Finish()
	r.Finish()

	// One finished hook plus one cascade driver, not two of each.
	if c.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", c.Pending())
	}
	drain(t, c)
	if l.Len() != 0 {
		t.Fatalf("ledger len = %d, want 0", l.Len())
	}
}

func TestParentFinishCascadesThroughChildren(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	leafClass := &Class{Name: "leaf", New: newRecorder}
	parentClass := &Class{
		Name: "parent",
		OnStart: func(target Registrant, _ any) error {
			if _, err := target.Core().Bind(leafClass, nil); err != nil {
				return err
			}
			_, err := target.Core().Bind(leafClass, nil)
			return err
		},
		New: newRecorder,
	}

	inst, err := New(l, c, parentClass, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	parent := inst.(*recorder)
	children := parent.Core().Bindings()
	if len(children) != 2 {
		t.Fatalf("bindings = %v, want two children", children)
	}

	parent.Finish()
	for i := 0; i < 100; i++ {
		if _, err := l.Lookup(parent.ID()); errors.Is(err, ErrEssenceNotFound) {
			// The parent may complete only after both children are gone.
			for _, id := range children {
				if _, err := l.Lookup(id); !errors.Is(err, ErrEssenceNotFound) {
					t.Fatalf("parent finished before child %d", id)
				}
			}
			break
		}
		if !c.RunOne() {
			t.Fatal("queue drained before the parent finished")
		}
	}

	drain(t, c)
	if l.Len() != 0 {
		t.Fatalf("ledger len = %d, want 0", l.Len())
	}
	if got := c.Tonics(); got != 0 {
		t.Fatalf("registered tonics = %d, want 0", got)
	}
}

func TestBindingFinishedHookSeesChild(t *testing.T) {
	t.Parallel()

	l, c := newTestRig()
	var reported []ID
	leafClass := &Class{Name: "leaf", New: newRecorder}
	parentClass := &Class{
		Name: "parent",
		OnBindingFinished: func(_, child Registrant) error {
			reported = append(reported, child.Core().ID())
			return nil
		},
		New: newRecorder,
	}

	inst, _ := New(l, c, parentClass, nil)
	parent := inst.(*recorder)
	child, err := parent.Core().Bind(leafClass, nil)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	child.Finish()
	drain(t, c)

	if len(reported) != 1 || reported[0] != child.Core().ID() {
		t.Fatalf("reported = %v, want [%d]", reported, child.Core().ID())
	}
	if parent.Phase() != Active {
		t.Fatalf("parent phase = %s, want active", parent.Phase())
	}
}
