package logbook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tonic"
)

// Handler is a slog.Handler that forwards records to the logbook service
// as queued write events, so standard logging and direct Book writes share
// one ordered output. The enqueue never blocks. Records arriving while no
// logbook is registered (or while it is finishing) come out as plain lines
// on the fallback writer instead.
//
// The attribute keys "component" and "essence" are lifted into the
// corresponding Record columns.
type Handler struct {
	ledger   *tonic.Ledger
	level    slog.Leveler
	fallback io.Writer
	attrs    []slog.Attr
	group    string
}

// NewHandler builds a Handler resolving the logbook through ledger. A nil
// level means info; a nil fallback writer means stderr.
func NewHandler(ledger *tonic.Ledger, level slog.Leveler, fallback io.Writer) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if fallback == nil {
		fallback = os.Stderr
	}
	return &Handler{ledger: ledger, level: level, fallback: fallback}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), h.qualify(attrs)...)
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "."
	}
	c.group += name
	return &c
}

func (h *Handler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Time: r.Time, Level: r.Level, Message: r.Message}
	take := func(a slog.Attr) {
		switch {
		case a.Key == "component" && a.Value.Kind() == slog.KindString && rec.Component == "":
			rec.Component = a.Value.String()
		case a.Key == "essence" && rec.Essence == 0:
			if id, ok := attrID(a.Value); ok {
				rec.Essence = id
				return
			}
			rec.Attrs = append(rec.Attrs, a)
		default:
			rec.Attrs = append(rec.Attrs, a)
		}
	}
	for _, a := range h.attrs {
		take(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Value = a.Value.Resolve()
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		take(a)
		return true
	})

	if svc, ok := h.ledger.LookupService(ServiceName); ok {
		if b, ok := svc.(*Book); ok && !b.InFinishing() {
			b.Write(rec)
			return nil
		}
	}
	return h.plain(rec)
}

func attrID(v slog.Value) (tonic.ID, bool) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return tonic.ID(v.Int64()), true
	case slog.KindAny:
		if id, ok := v.Any().(tonic.ID); ok {
			return id, true
		}
	}
	return 0, false
}

func (h *Handler) plain(rec Record) error {
	var sb strings.Builder
	sb.WriteString(rec.Time.Format("15:04:05.000"))
	fmt.Fprintf(&sb, " %-5s ", rec.Level.String())
	if rec.Essence != 0 {
		fmt.Fprintf(&sb, "%02d", rec.Essence)
	} else {
		sb.WriteString("--")
	}
	if rec.Component != "" {
		sb.WriteByte(' ')
		sb.WriteString(rec.Component)
	}
	sb.WriteByte(' ')
	sb.WriteString(rec.Message)
	for _, a := range rec.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.String())
	}
	_, err := fmt.Fprintln(h.fallback, sb.String())
	return err
}
