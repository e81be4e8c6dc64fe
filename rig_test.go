package tonic

import (
	"io"
	"log/slog"
	"testing"
)

// Shared test rig: a ledger plus one held-open catalyst that tests drive
// manually with RunOne, so dispatch order is deterministic and no goroutine
// is ever started.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRig() (*Ledger, *Catalyst) {
	ledger := NewLedger()
	cat := NewCatalyst(ledger, "test", WithHoldOpen(), WithLogger(quietLogger()))
	return ledger, cat
}

func newBareEssence(l *Ledger, c *Catalyst, context ID) *Essence {
	e := &Essence{
		ledger:   l,
		catalyst: c,
		context:  context,
		bindings: make(map[ID]struct{}),
	}
	l.Register(e)
	return e
}

func drain(t *testing.T, c *Catalyst) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if !c.RunOne() {
			return
		}
	}
	t.Fatal("queue did not drain within 1000 steps")
}
