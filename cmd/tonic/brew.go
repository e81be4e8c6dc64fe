package main

import (
	"log/slog"
	"time"

	"tonic"
	"tonic/formula"
	"tonic/logbook"
	"tonic/store"
	"tonic/timer"

	"github.com/spf13/cobra"
)

func brewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brew [formula.yaml]",
		Short: "Run a formula file against the built-in demo classes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := formula.DefaultPath()
			if len(args) == 1 {
				path = args[0]
			}
			f, err := formula.Load(path, demoRegistry())
			if err != nil {
				return err
			}
			opts, closeTrace := traceOptions()
			defer closeTrace()
			return f.Brew(cmd.Context(), opts...)
		},
	}
	return cmd
}

// demoRegistry names the classes formula files may brew in this binary.
func demoRegistry() formula.Registry {
	return formula.Registry{
		"keeper": store.KeeperClass,
		"book":   logbook.BookClass,
		"drift":  timer.DriftClass,
		"pulse":  pulseClass,
	}
}

// pulse logs a heartbeat on a repeat timer and finishes after a set number
// of beats. Params: "every" (duration string, default 500ms), "count"
// (default 10).
type pulse struct {
	*tonic.Tonic
	log  *slog.Logger
	left int
}

var pulseClass = &tonic.Class{
	Name: "pulse",
	New: func(t *tonic.Tonic) tonic.Registrant {
		return &pulse{Tonic: t, log: slog.With("component", "pulse")}
	},
	OnStart: pulseStart,
	Ops: []tonic.Op{
		{Name: "beat", Category: tonic.Internal, Do: pulseBeat},
	},
}

func pulseStart(r tonic.Registrant, _ any) error {
	p := r.(*pulse)
	p.left = 10
	if n, ok := p.Params()["count"].(int); ok && n > 0 {
		p.left = n
	}
	every := 500 * time.Millisecond
	if s, ok := p.Params().String("every"); ok {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			every = d
		} else {
			p.log.Warn("invalid every param, using default", "value", s)
		}
	}
	_, err := timer.Repeat(p, every, func() { p.Internal("beat", nil) })
	return err
}

func pulseBeat(r tonic.Registrant, _ any) error {
	p := r.(*pulse)
	p.left--
	p.log.Info("beat", "essence", p.ID(), "left", p.left)
	if p.left <= 0 {
		p.Finish()
	}
	return nil
}
