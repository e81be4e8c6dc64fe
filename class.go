package tonic

import (
	"sort"
	"sync"

	"tonic/internal/check"
)

// Params is the loose parameter bag handed to Bind and New. The reserved
// key "name" overrides the instance name.
type Params map[string]any

// String returns the string value for key, if present and a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Pick returns the subset of p under the given keys.
func (p Params) Pick(keys []string) Params {
	out := make(Params, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Handler is a unit of queued work. target is the instance the operation
// was called on; a returned error (or panic) is caught at the dispatch
// boundary, logged, and never halts the catalyst.
type Handler func(target Registrant, payload any) error

// State declares one named state with optional enter/exit hooks. Hooks run
// on the owning catalyst's goroutine as part of the deferred transition.
type State struct {
	Name  string
	Enter Handler
	Exit  Handler
}

// Op declares one operation. State narrows the handler to a single state;
// an empty State declares the generic handler used by every state that has
// no override. Category System is reserved for the runtime.
type Op struct {
	Name     string
	Category Category
	State    string
	Do       Handler
}

// Class describes a tonic kind declaratively, as a package-level literal.
// All instances of a class share one compiled dispatch table.
//
// A class with a non-empty Service name is a singleton: binding it resolves
// against the ledger instead of constructing, Setup lists the construction
// parameter keys consumed only by the first bind, Access the per-access
// keys handed to OnAccess on every bind.
type Class struct {
	Name string

	// Service configuration (empty Service means a plain class).
	Service string
	Setup   []string
	Access  []string
	// OnAccess runs on every resolution, first bind included. ctx is nil
	// for top-level resolutions. Failures are logged, never returned.
	OnAccess func(svc, ctx Registrant, access Params) error

	States []State
	Ops    []Op

	// OnStart runs synchronously at construction, exactly once, after the
	// runtime's own bookkeeping. OnFinished and the finish driver are
	// queued as system items when Finish is called.
	OnStart    Handler
	OnFinished Handler

	// Global transition hooks, bracketing the per-state ones.
	OnEnter Handler
	OnExit  Handler

	// OnBindingFinished runs (queued, system category) when one of an
	// instance's bindings completes its finish, before the bookkeeping
	// that may complete the instance's own finish.
	OnBindingFinished func(self, child Registrant) error

	// New wraps the runtime core in the user's instance type. When nil the
	// bare *Tonic is registered.
	New func(t *Tonic) Registrant

	once  sync.Once
	table *dispatch
}

// opKey indexes the dispatch table by operation name and category.
type opKey struct {
	name string
	cat  Category
}

// dispatch is a class's compiled capability table: states sorted
// lexicographically (index -1 is the implicit "no state", stored in slot
// 0), and per declared operation a handler slot for every state.
type dispatch struct {
	states []string
	index  map[string]int32
	enter  []Handler
	exit   []Handler
	ops    map[opKey][]Handler
}

// compile builds the table once and caches it on the class.
func (c *Class) compile() *dispatch {
	c.once.Do(func() {
		names := make([]string, 0, len(c.States))
		for _, s := range c.States {
			names = append(names, s.Name)
		}
		sort.Strings(names)

		d := &dispatch{
			states: names,
			index:  make(map[string]int32, len(names)),
			enter:  make([]Handler, len(names)),
			exit:   make([]Handler, len(names)),
			ops:    make(map[opKey][]Handler),
		}
		for i, n := range names {
			check.Assertf(n != "", "class %s declares an unnamed state", c.Name)
			if i > 0 {
				check.Assertf(names[i-1] != n, "class %s declares state %q twice", c.Name, n)
			}
			d.index[n] = int32(i)
		}
		for _, s := range c.States {
			i := d.index[s.Name]
			d.enter[i] = s.Enter
			d.exit[i] = s.Exit
		}

		for _, op := range c.Ops {
			if op.Category == System {
				check.Assertf(false, "class %s declares reserved system op %q", c.Name, op.Name)
				continue
			}
			k := opKey{op.Name, op.Category}
			if _, ok := d.ops[k]; !ok {
				d.ops[k] = make([]Handler, len(names)+1)
			}
		}
		// Generic handlers fill every slot; state overrides then replace
		// their one slot.
		for _, op := range c.Ops {
			if op.Category == System || op.State != "" {
				continue
			}
			slots := d.ops[opKey{op.Name, op.Category}]
			for i := range slots {
				slots[i] = op.Do
			}
		}
		for _, op := range c.Ops {
			if op.Category == System || op.State == "" {
				continue
			}
			i, ok := d.index[op.State]
			if !ok {
				check.Assertf(false, "class %s: op %q declares unknown state %q", c.Name, op.Name, op.State)
				continue
			}
			d.ops[opKey{op.Name, op.Category}][i+1] = op.Do
		}

		c.table = d
	})
	return c.table
}

// resolve returns the handler slot for (name, cat) at the given state
// index. ok is false when the operation was never declared; a nil handler
// with ok true is a declared no-op slot.
func (d *dispatch) resolve(name string, cat Category, state int32) (Handler, bool) {
	slots, ok := d.ops[opKey{name, cat}]
	if !ok {
		return nil, false
	}
	return slots[state+1], true
}

func (d *dispatch) stateIndex(name string) (int32, bool) {
	i, ok := d.index[name]
	return i, ok
}

func (d *dispatch) stateName(i int32) string {
	if i < 0 || int(i) >= len(d.states) {
		return "none"
	}
	return d.states[i]
}
