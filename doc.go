// Package tonic is a cooperative-actor runtime. Stateful units (tonics)
// communicate only through operations queued on single-threaded engines
// (catalysts), are organized into an ownership hierarchy of essences, and
// share process-wide singleton services resolved by name.
//
// A process holds one Ledger (the registry of live essences and named
// services) and one or more Catalysts. Each essence belongs to exactly one
// catalyst, and only that catalyst's goroutine ever runs its handlers, so a
// handler observes every prior handler's effects on its own essence without
// locks. Parallelism is explicit: binding a child onto a different catalyst
// with BindOn is the only fan-out mechanism.
//
// Classes are declared as package-level literals, in the spirit of
// cobra.Command:
//
//	var Worker = &tonic.Class{
//		Name:   "worker",
//		States: []tonic.State{{Name: "busy"}, {Name: "idle"}},
//		Ops: []tonic.Op{
//			{Name: "job", Category: tonic.Command, Do: onJob},
//			{Name: "job", Category: tonic.Command, State: "busy", Do: onJobBusy},
//		},
//	}
//
// Calling an operation resolves the handler against the state at the moment
// of the call and enqueues it; the transition a handler requests with
// ToState is applied after the handler returns. Finish tears an essence
// down depth-first through everything it has bound, and the catalyst stops
// on its own once its last tonic is gone.
package tonic
