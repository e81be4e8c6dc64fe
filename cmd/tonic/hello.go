package main

import (
	"fmt"
	"log/slog"

	"tonic"

	"github.com/spf13/cobra"
)

func helloCmd() *cobra.Command {
	var rounds int

	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Two greeters exchange greetings and finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rounds < 1 {
				return fmt.Errorf("rounds must be positive, got %d", rounds)
			}
			opts, closeTrace := traceOptions()
			defer closeTrace()

			ledger := tonic.NewLedger()
			cat := tonic.NewCatalyst(ledger, "hello", opts...)

			a, err := tonic.New(ledger, cat, greeterClass, tonic.Params{"name": "alice"})
			if err != nil {
				return err
			}
			b, err := tonic.New(ledger, cat, greeterClass, tonic.Params{"name": "bob"})
			if err != nil {
				return err
			}
			alice, bob := a.(*greeter), b.(*greeter)
			alice.peer = bob
			bob.peer = alice

			alice.Event("greet", rounds)
			return cat.Start(tonic.Inline)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 4, "Greetings to exchange")
	return cmd
}

type greeter struct {
	*tonic.Tonic
	peer *greeter
	log  *slog.Logger
}

var greeterClass = &tonic.Class{
	Name: "greeter",
	New: func(t *tonic.Tonic) tonic.Registrant {
		return &greeter{Tonic: t, log: slog.With("component", "hello")}
	},
	Ops: []tonic.Op{
		{Name: "greet", Category: tonic.Event, Do: onGreet},
	},
}

func onGreet(r tonic.Registrant, payload any) error {
	g := r.(*greeter)
	n, ok := payload.(int)
	if !ok {
		return fmt.Errorf("greet payload %T, want int", payload)
	}
	g.log.Info("greeting received", "greeter", g.Name(), "remaining", n)
	if n <= 0 {
		g.peer.Finish()
		g.Finish()
		return nil
	}
	g.peer.Event("greet", n-1)
	return nil
}
