package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tonic"
	"tonic/internal/logging"
	"tonic/telemetry"

	"github.com/spf13/cobra"
)

var (
	logLevel     string
	traceEnabled bool
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "tonic",
		Short:         "Cooperative tonic runtime demos",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "Log a span per dispatched operation")

	root.AddCommand(helloCmd())
	root.AddCommand(trafficCmd())
	root.AddCommand(brewCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// traceOptions builds the per-catalyst tracing options for --trace runs.
// The returned close flushes the provider.
func traceOptions() ([]tonic.CatalystOption, func()) {
	if !traceEnabled {
		return nil, func() {}
	}
	provider := telemetry.NewProvider(slog.Default())
	opt := tonic.WithTracer(telemetry.Tracer(provider, "tonic"))
	return []tonic.CatalystOption{opt}, func() {
		_ = provider.Shutdown(context.Background())
	}
}
