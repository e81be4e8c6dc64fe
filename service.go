package tonic

import (
	"fmt"

	"tonic/internal/check"
)

// resolveService implements the singleton protocol. The first resolution of
// a service name constructs the instance with the full parameter set and
// records the creating context; every later resolution returns the cached
// instance, ignores setup parameters and tracks the context as an accessor.
// The per-access hook runs on every resolution, the first included.
//
// Lifecycle stays with the creator: the singleton is adopted into the
// creator's bindings, so the creator's finish cascades into it, while
// accessors only ever hold an entry in the record's accessor set.
func resolveService(ledger *Ledger, ctx Registrant, cat *Catalyst, class *Class, params Params) (Registrant, error) {
	check.Assertf(class.Service != "", "class %s is not a service", class.Name)
	name := class.Service

	if owner, id, ok := ledger.serviceFor(name); ok {
		if owner != class {
			return nil, fmt.Errorf("resolve %q for class %s: name owned by class %s: %w",
				name, class.Name, owner.Name, ErrServiceNameConflict)
		}
		svc, err := ledger.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("resolve service %q: %w", name, err)
		}
		if ctx != nil {
			ledger.addAccessor(name, ctx.Core().id)
		}
		runAccessHook(class, svc, ctx, params)
		return svc, nil
	}

	svc, err := construct(ledger, cat, class, ctx, params)
	if err != nil {
		return nil, err
	}
	var creator ID
	if ctx != nil {
		creator = ctx.Core().id
	}
	if err := ledger.RegisterService(name, svc, class, creator); err != nil {
		// Lost the name while constructing. The fresh instance must not
		// leak: tear it down and surface the conflict.
		svc.Finish()
		return nil, fmt.Errorf("resolve %q for class %s: %w", name, class.Name, err)
	}
	if ctx != nil {
		ctx.Core().adopt(svc.Core().id)
	}
	runAccessHook(class, svc, ctx, params)
	return svc, nil
}

// runAccessHook invokes OnAccess with the per-access parameter subset.
// Failures are handled exactly like handler failures: logged against the
// singleton, never surfaced, and the resolution still returns the instance.
func runAccessHook(class *Class, svc, ctx Registrant, params Params) {
	if class.OnAccess == nil {
		return
	}
	access := params.Pick(class.Access)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("access hook panic: %v", r)
			}
		}()
		return class.OnAccess(svc, ctx, access)
	}()
	if err != nil {
		svc.Core().logger().Error("service access hook failed",
			"service", class.Service, "essence", svc.Core().ID(), "error", err)
	}
}
