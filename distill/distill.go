// Package distill is a step-controlled harness for exercising tonic trees
// in tests. Its catalyst is held open and never started: no goroutine ever
// drains it, the test drives every dispatch explicitly, so ordering
// assertions are deterministic.
package distill

import (
	"tonic"
)

// DefaultMaxSteps caps the bounded stepping helpers when max is zero.
const DefaultMaxSteps = 1000

// Harness owns a ledger and one undriven catalyst.
type Harness struct {
	ledger   *tonic.Ledger
	catalyst *tonic.Catalyst
}

func New(opts ...tonic.CatalystOption) *Harness {
	ledger := tonic.NewLedger()
	opts = append([]tonic.CatalystOption{tonic.WithHoldOpen()}, opts...)
	return &Harness{
		ledger:   ledger,
		catalyst: tonic.NewCatalyst(ledger, "distill", opts...),
	}
}

func (h *Harness) Ledger() *tonic.Ledger     { return h.ledger }
func (h *Harness) Catalyst() *tonic.Catalyst { return h.catalyst }

// Brew constructs a top-level instance on the harness catalyst.
func (h *Harness) Brew(class *tonic.Class, params tonic.Params) (tonic.Registrant, error) {
	return tonic.New(h.ledger, h.catalyst, class, params)
}

// Lookup resolves an id against the harness ledger.
func (h *Harness) Lookup(id tonic.ID) (tonic.Registrant, error) {
	return h.ledger.Lookup(id)
}

// Pending reports the queue length.
func (h *Harness) Pending() int { return h.catalyst.Pending() }

// Step dispatches exactly one queued operation, reporting whether there was
// one.
func (h *Harness) Step() bool { return h.catalyst.RunOne() }

// StepAll dispatches until the queue is empty or max steps were taken
// (DefaultMaxSteps when max is zero). It returns the number of steps.
func (h *Harness) StepAll(max int) int {
	if max <= 0 {
		max = DefaultMaxSteps
	}
	steps := 0
	for steps < max && h.Step() {
		steps++
	}
	return steps
}

// StepUntil dispatches until pred holds, the queue empties, or max steps
// were taken. It reports whether pred held.
func (h *Harness) StepUntil(pred func() bool, max int) bool {
	if max <= 0 {
		max = DefaultMaxSteps
	}
	for steps := 0; steps < max; steps++ {
		if pred() {
			return true
		}
		if !h.Step() {
			break
		}
	}
	return pred()
}

// StepUntilState dispatches until the machine reports the wanted state.
func (h *Harness) StepUntilState(tn interface{ State() string }, state string, max int) bool {
	return h.StepUntil(func() bool { return tn.State() == state }, max)
}
