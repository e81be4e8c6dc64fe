package distill

import (
	"testing"

	"tonic"
)

func TestStepsDrainInEnqueueOrder(t *testing.T) {
	t.Parallel()
	h := New()

	var seen []int
	cls := &tonic.Class{
		Name: "pinger",
		Ops: []tonic.Op{
			{Name: "ping", Category: tonic.Event, Do: func(_ tonic.Registrant, payload any) error {
				seen = append(seen, payload.(int))
				return nil
			}},
		},
	}
	r, err := h.Brew(cls, nil)
	if err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	tn := r.(*tonic.Tonic)

	tn.Event("ping", 1)
	tn.Event("ping", 2)
	if got := h.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	if !h.Step() {
		t.Fatal("Step() found no work")
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("seen after one step = %v, want [1]", seen)
	}
	if steps := h.StepAll(0); steps != 1 {
		t.Fatalf("StepAll() = %d, want 1", steps)
	}
	if h.Step() {
		t.Fatal("Step() on an empty queue reported work")
	}
	if _, err := h.Lookup(tn.ID()); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
}

func TestStepAllHonorsCap(t *testing.T) {
	t.Parallel()
	h := New()

	cls := &tonic.Class{
		Name: "echo",
		Ops: []tonic.Op{
			{Name: "echo", Category: tonic.Internal, Do: func(r tonic.Registrant, _ any) error {
				r.(*tonic.Tonic).Internal("echo", nil)
				return nil
			}},
		},
	}
	r, err := h.Brew(cls, nil)
	if err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	r.(*tonic.Tonic).Internal("echo", nil)

	if steps := h.StepAll(7); steps != 7 {
		t.Fatalf("StepAll(7) = %d, want 7", steps)
	}
	if h.Pending() == 0 {
		t.Fatal("self-echoing queue drained, cap did not bite")
	}
}

func TestStepUntilStateStopsAtTarget(t *testing.T) {
	t.Parallel()
	h := New()

	cls := &tonic.Class{
		Name:   "light",
		States: []tonic.State{{Name: "red"}, {Name: "green"}},
		Ops: []tonic.Op{
			{Name: "set", Category: tonic.Command, Do: func(r tonic.Registrant, payload any) error {
				r.(*tonic.Tonic).ToState(payload.(string))
				return nil
			}},
		},
	}
	r, err := h.Brew(cls, nil)
	if err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	tn := r.(*tonic.Tonic)

	tn.Command("set", "red")
	tn.Command("set", "green")
	if !h.StepUntilState(tn, "red", 0) {
		t.Fatal("never reached red")
	}
	if got := h.Pending(); got != 1 {
		t.Fatalf("pending after reaching red = %d, want 1", got)
	}
	if !h.StepUntilState(tn, "green", 0) {
		t.Fatal("never reached green")
	}
}

func TestStepUntilReportsPredicateMiss(t *testing.T) {
	t.Parallel()
	h := New()

	cls := &tonic.Class{Name: "still"}
	if _, err := h.Brew(cls, nil); err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	if h.StepUntil(func() bool { return false }, 5) {
		t.Fatal("StepUntil() reported an unsatisfiable predicate as held")
	}
}
