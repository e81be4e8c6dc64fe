// Package telemetry wires catalyst dispatch spans to slog. The provider
// carries no exporter: every span is reported as one log line when it ends,
// which keeps tracing usable in a plain terminal without a collector.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewProvider builds a tracer provider that logs span ends through log.
// Callers own shutdown.
func NewProvider(log *slog.Logger) *sdktrace.TracerProvider {
	if log == nil {
		log = slog.Default()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&logSpanProcessor{log: log}),
	)
}

// Tracer returns a tracer from p, falling back to the global provider when p
// is nil.
func Tracer(p *sdktrace.TracerProvider, name string) trace.Tracer {
	if p == nil {
		return otel.Tracer(name)
	}
	return p.Tracer(name)
}

type logSpanProcessor struct {
	log *slog.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	attrs := make([]any, 0, 2*len(span.Attributes())+6)
	attrs = append(attrs,
		"span", span.Name(),
		"duration", span.EndTime().Sub(span.StartTime()),
	)
	for _, kv := range span.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.AsInterface())
	}
	status := span.Status()
	if status.Code == codes.Error {
		attrs = append(attrs, "error", status.Description)
		p.log.Error("span failed", attrs...)
		return
	}
	p.log.Debug("span ended", attrs...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
