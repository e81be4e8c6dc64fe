package tonic

// Phase describes an essence's lifecycle state.
type Phase uint8

const (
	Active Phase = iota
	Finishing
	Finished
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Finishing:
		return "finishing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Category classifies a queued operation. Commands, events and internals
// are declared by classes; System is reserved for the runtime's own items
// (finish driver, finished hook, binding-finished notifications), which are
// the only items still dispatched once an essence is finishing.
type Category uint8

const (
	Command Category = iota
	Event
	Internal
	System
)

func (c Category) String() string {
	switch c {
	case Command:
		return "command"
	case Event:
		return "event"
	case Internal:
		return "internal"
	case System:
		return "system"
	default:
		return "unknown"
	}
}

// StartPolicy selects how a catalyst's drain loop runs.
type StartPolicy uint8

const (
	// Inline runs the loop on the calling goroutine, blocking until stop.
	Inline StartPolicy = iota
	// Spawn starts a dedicated goroutine and returns immediately.
	Spawn
)

func (p StartPolicy) String() string {
	switch p {
	case Inline:
		return "inline"
	case Spawn:
		return "spawn"
	default:
		return "unknown"
	}
}
