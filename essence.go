package tonic

import (
	"log/slog"
	"sync"
)

// Registrant is anything that can live in a Ledger: an essence, a tonic, or
// a user type embedding either. The runtime dispatches lifecycle callbacks
// through this interface so tonic-backed units can defer them to their
// catalyst queue.
type Registrant interface {
	// Core returns the embedded lifecycle core.
	Core() *Essence
	// Finish starts the idempotent teardown cascade.
	Finish()
	// BindingFinished tells a context that one of its bindings completed
	// its finish. Runtime callback, not for general use.
	BindingFinished(child Registrant)
}

// Essence is the base lifecycle unit: an identity in the Ledger, a
// non-owning back-reference to the context that bound it, and exclusive
// ownership of the bindings it has created. Finishing cascades depth-first
// through bindings; an essence completes only after all of its bindings
// have reported back.
type Essence struct {
	id       ID
	name     string
	ledger   *Ledger
	catalyst *Catalyst
	context  ID
	params   Params
	self     Registrant
	counted  bool

	mu       sync.Mutex
	phase    Phase
	bindings map[ID]struct{}
}

func (e *Essence) Core() *Essence     { return e }
func (e *Essence) ID() ID             { return e.id }
func (e *Essence) Name() string       { return e.name }
func (e *Essence) Context() ID        { return e.context }
func (e *Essence) Catalyst() *Catalyst { return e.catalyst }
func (e *Essence) Ledger() *Ledger    { return e.ledger }

// Params returns the construction parameter bag.
func (e *Essence) Params() Params { return e.params }

func (e *Essence) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Bindings returns a snapshot of the owned child ids.
func (e *Essence) Bindings() []ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ID, 0, len(e.bindings))
	for id := range e.bindings {
		out = append(out, id)
	}
	return out
}

// registrant returns the wrapper instance registered in the ledger, or the
// essence itself when it was built bare.
func (e *Essence) registrant() Registrant {
	if e.self != nil {
		return e.self
	}
	return e
}

func (e *Essence) logger() *slog.Logger {
	if e.catalyst != nil {
		return e.catalyst.log
	}
	return slog.Default()
}

func (e *Essence) adopt(id ID) {
	e.mu.Lock()
	e.bindings[id] = struct{}{}
	e.mu.Unlock()
}

// Finish starts teardown. Idempotent: only the first call on an active
// essence does anything. With no bindings the essence completes on the
// calling goroutine; otherwise it turns finishing and completes later, once
// every binding has reported back through BindingFinished.
func (e *Essence) Finish() {
	e.mu.Lock()
	if e.phase != Active {
		e.mu.Unlock()
		return
	}
	e.phase = Finishing
	children := make([]ID, 0, len(e.bindings))
	for id := range e.bindings {
		children = append(children, id)
	}
	e.mu.Unlock()

	if len(children) == 0 {
		e.complete()
		return
	}
	for _, id := range children {
		child, err := e.ledger.Lookup(id)
		if err != nil {
			// Completed concurrently; its report is already on the way.
			continue
		}
		child.Finish()
	}
}

// BindingFinished removes child from the owned set and, when this essence
// is itself finishing and the set just emptied, completes its own finish.
func (e *Essence) BindingFinished(child Registrant) {
	e.dropBinding(child.Core().id)
}

func (e *Essence) dropBinding(id ID) {
	e.mu.Lock()
	delete(e.bindings, id)
	done := e.phase == Finishing && len(e.bindings) == 0
	e.mu.Unlock()
	if done {
		e.complete()
	}
}

// complete runs the terminal step of a finish: unregister, release any
// service accessor entries held by this id, notify service accessors when
// this essence is a singleton, and report back to the context.
func (e *Essence) complete() {
	e.mu.Lock()
	if e.phase == Finished {
		e.mu.Unlock()
		return
	}
	e.phase = Finished
	e.mu.Unlock()

	// Drop the service record before unregistering so a concurrent resolve
	// either sees the live record or a free name, never a dangling one.
	accessors, isService := e.ledger.dropServiceByID(e.id)
	e.ledger.Unregister(e.id)
	e.ledger.releaseAccessor(e.id)
	if e.counted {
		e.catalyst.DeregisterTonic(e.id)
	}
	e.logger().Debug("essence finished", "essence", e.id, "name", e.name)

	if isService {
		for _, aid := range accessors {
			if aid == e.context {
				// The creator re-resolved at some point and landed in the
				// accessor set; it is reported once, through the context
				// path below.
				continue
			}
			if a, err := e.ledger.Lookup(aid); err == nil {
				a.BindingFinished(e.registrant())
			}
		}
	}
	if e.context != 0 {
		if ctx, err := e.ledger.Lookup(e.context); err == nil {
			ctx.BindingFinished(e.registrant())
		}
	}
}
