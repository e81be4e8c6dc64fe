package formula

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"

	"tonic"
	"tonic/internal/logging"

	"golang.org/x/sys/unix"
)

// Brew builds and runs the formula: one ledger, every declared catalyst,
// every brew constructed on its catalyst. Spawn catalysts run on their own
// goroutines; the inline catalyst, when declared, runs on the caller's.
// SIGINT, SIGTERM and ctx cancellation finish the root brews, which
// cascades through their bindings and lets every catalyst drain and stop.
// Brew returns once all catalysts are done.
//
// opts apply to every catalyst, after the formula's own logger option.
func (f *Formula) Brew(ctx context.Context, opts ...tonic.CatalystOption) error {
	if f.Spec.LogLevel != "" {
		if err := logging.Configure(f.Spec.LogLevel); err != nil {
			return fmt.Errorf("formula: %w", err)
		}
	}
	log := slog.Default().With("process", f.Spec.Process)

	ledger := tonic.NewLedger()
	base := append([]tonic.CatalystOption{tonic.WithLogger(log)}, opts...)

	catalysts := make(map[string]*tonic.Catalyst, len(f.Spec.Catalysts))
	var inline *tonic.Catalyst
	var spawns []*tonic.Catalyst
	for _, cs := range f.Spec.Catalysts {
		cat := tonic.NewCatalyst(ledger, cs.Name, base...)
		catalysts[cs.Name] = cat
		if cs.Policy == PolicyInline {
			inline = cat
		} else {
			spawns = append(spawns, cat)
		}
	}

	hosted := make(map[*tonic.Catalyst]bool, len(catalysts))
	roots := make([]tonic.Registrant, 0, len(f.Spec.Brews))
	for i, bs := range f.Spec.Brews {
		cat := catalysts[bs.Catalyst]
		r, err := tonic.New(ledger, cat, f.reg[bs.Class], tonic.Params(bs.Params))
		if err != nil {
			return fmt.Errorf("brew %d (%s): %w", i, bs.Class, err)
		}
		roots = append(roots, r)
		hosted[cat] = true
	}
	log.Info("formula brewed",
		"brews", len(roots), "catalysts", len(catalysts))

	for _, cat := range spawns {
		if err := cat.Start(tonic.Spawn); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()
	var settled atomic.Bool
	go func() {
		<-sigCtx.Done()
		if settled.Load() {
			return
		}
		log.Info("shutdown requested, finishing brews")
		for _, r := range roots {
			r.Finish()
		}
	}()

	if inline != nil {
		if err := inline.Start(tonic.Inline); err != nil {
			return err
		}
	}

	// Hosted catalysts stop on their own once their trees finish. The rest
	// exist for late fan-out binds; by the time every hosted catalyst is
	// done those binds have finished too, so stopping them is safe.
	for _, cat := range spawns {
		if hosted[cat] {
			<-cat.Done()
		}
	}
	for _, cat := range spawns {
		if !hosted[cat] {
			cat.Stop()
			<-cat.Done()
		}
	}
	settled.Store(true)
	return nil
}
