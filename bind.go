package tonic

import (
	"fmt"

	"tonic/internal/check"
)

// New constructs a top-level (context-free) instance of class on the given
// catalyst. Service classes resolve instead of constructing; the resolution
// is not tracked in any accessor set when the context is absent.
func New(ledger *Ledger, cat *Catalyst, class *Class, params Params) (Registrant, error) {
	check.Assert(ledger != nil && cat != nil && class != nil, "tonic.New: nil argument")
	if class.Service != "" {
		return resolveService(ledger, nil, cat, class, params)
	}
	return construct(ledger, cat, class, nil, params)
}

// Bind constructs a child of this essence on the same catalyst and adopts
// it into the owned bindings. Service classes divert to the resolver.
func (e *Essence) Bind(class *Class, params Params) (Registrant, error) {
	return e.BindOn(class, e.catalyst, params)
}

// BindOn is Bind with an explicit catalyst, the one supported fan-out
// mechanism: the child's handlers run on cat's goroutine, concurrently with
// this essence's.
func (e *Essence) BindOn(class *Class, cat *Catalyst, params Params) (Registrant, error) {
	check.Assert(class != nil, "Bind: nil class")
	check.Assert(cat != nil, "Bind: nil catalyst")
	if class.Service != "" {
		return resolveService(e.ledger, e.registrant(), cat, class, params)
	}
	child, err := construct(e.ledger, cat, class, e.registrant(), params)
	if err != nil {
		return nil, err
	}
	e.adopt(child.Core().id)
	return child, nil
}

// construct builds, registers and starts one instance: compile the class
// table, wrap the core, register with the ledger (assigning the id and the
// default instance name), count it on its catalyst, then run the start
// hooks synchronously, exactly once. A failing user start hook is logged
// like any handler failure; construction still succeeds.
func construct(ledger *Ledger, cat *Catalyst, class *Class, ctx Registrant, params Params) (Registrant, error) {
	table := class.compile()

	e := &Essence{
		ledger:   ledger,
		catalyst: cat,
		params:   params,
		bindings: make(map[ID]struct{}),
	}
	if ctx != nil {
		e.context = ctx.Core().id
	}
	t := &Tonic{Essence: e, class: class, table: table}
	t.state.Store(stateNone)

	var inst Registrant = t
	if class.New != nil {
		inst = class.New(t)
		check.Assertf(inst != nil, "class %s: New returned nil", class.Name)
		if inst == nil {
			return nil, fmt.Errorf("bind %s: class constructor returned nil", class.Name)
		}
	}
	e.self = inst

	ledger.Register(inst)
	if name, ok := params.String("name"); ok && name != "" {
		e.name = name
	} else {
		e.name = fmt.Sprintf("%02d.%s", e.id, class.Name)
	}
	cat.RegisterTonic(e.id)
	e.counted = true

	// System-level start: the instance is now visible and counted.
	cat.log.Debug("essence bound",
		"essence", e.id, "name", e.name, "class", class.Name, "context", e.context)
	if class.OnStart != nil {
		if err := safeCall(class.OnStart, inst, nil); err != nil {
			cat.log.Error("start hook failed",
				"essence", e.id, "op", "on_start", "error", err)
		}
	}
	return inst, nil
}
