package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tonic"
	"tonic/internal/logging"
	"tonic/logbook"
	"tonic/timer"

	"github.com/spf13/cobra"
)

func trafficCmd() *cobra.Command {
	var (
		period time.Duration
		cycles int
	)

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Run a timer-driven traffic light with logbook output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cycles < 1 {
				return fmt.Errorf("cycles must be positive, got %d", cycles)
			}
			opts, closeTrace := traceOptions()
			defer closeTrace()

			ledger := tonic.NewLedger()

			// Route all logging through the logbook the light binds at
			// start, so runtime logs and light announcements share one
			// styled, ordered stream. Records land on stderr until the
			// book exists.
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(logbook.NewHandler(ledger, level, nil)))

			cat := tonic.NewCatalyst(ledger, "traffic", opts...)
			r, err := tonic.New(ledger, cat, lightClass, tonic.Params{
				"period": period,
				"cycles": cycles,
			})
			if err != nil {
				return err
			}
			l := r.(*light)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				l.Finish()
			}()

			return cat.Start(tonic.Inline)
		},
	}
	cmd.Flags().DurationVar(&period, "period", 800*time.Millisecond, "Time between light changes")
	cmd.Flags().IntVar(&cycles, "cycles", 10, "Light changes before the demo finishes")
	return cmd
}

type light struct {
	*tonic.Tonic
	book *logbook.Book
	left int
}

var lightClass = &tonic.Class{
	Name: "light",
	States: []tonic.State{
		{Name: "red", Enter: announce},
		{Name: "green", Enter: announce},
		{Name: "yellow", Enter: announce},
	},
	New: func(t *tonic.Tonic) tonic.Registrant {
		return &light{Tonic: t}
	},
	OnStart: lightStart,
	Ops: []tonic.Op{
		{Name: "cycle", Category: tonic.Internal, Do: lightCycle},
	},
}

func lightStart(r tonic.Registrant, _ any) error {
	l := r.(*light)
	l.left = 10
	if n, ok := l.Params()["cycles"].(int); ok && n > 0 {
		l.left = n
	}
	period := 800 * time.Millisecond
	if d, ok := l.Params()["period"].(time.Duration); ok && d > 0 {
		period = d
	}

	svc, err := l.Bind(logbook.BookClass, tonic.Params{"writer": os.Stdout})
	if err != nil {
		return err
	}
	l.book = svc.(*logbook.Book)

	if _, err := timer.Repeat(l, period, func() { l.Internal("cycle", nil) }); err != nil {
		return err
	}
	l.Internal("cycle", nil)
	return nil
}

func lightCycle(r tonic.Registrant, _ any) error {
	l := r.(*light)
	l.left--
	if l.left < 0 {
		l.book.Write(logbook.Record{
			Level:     slog.LevelInfo,
			Essence:   l.ID(),
			Component: "traffic",
			Message:   "demo finished",
		})
		l.Finish()
		return nil
	}
	l.ToState(nextLight(l.State()))
	return nil
}

func announce(r tonic.Registrant, _ any) error {
	l := r.(*light)
	l.book.Write(logbook.Record{
		Level:     slog.LevelInfo,
		Essence:   l.ID(),
		Component: "traffic",
		Message:   "light is " + l.State(),
	})
	return nil
}

func nextLight(cur string) string {
	switch cur {
	case "red":
		return "green"
	case "green":
		return "yellow"
	default:
		return "red"
	}
}
