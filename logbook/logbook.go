// Package logbook renders process log records through the shared "logbook"
// service: one essence owns the output writer, every line is a queued write
// event, so output never interleaves no matter which goroutine logged. The
// slog bridge in this package routes standard logging into it.
package logbook

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tonic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ServiceName is the registered service name of the Book singleton.
const ServiceName = "logbook"

const opWrite = "write"

// Record is one logbook line.
type Record struct {
	Time      time.Time
	Level     slog.Level
	Essence   tonic.ID
	Component string
	Message   string
	Attrs     []slog.Attr
}

// Book is the logbook service instance: a writer plus the styles that
// render records onto it. Writes happen only on its catalyst goroutine.
type Book struct {
	*tonic.Tonic
	w  io.Writer
	st styles
}

// Write queues one record. Safe from any goroutine.
func (b *Book) Write(rec Record) { b.Event(opWrite, rec) }

// BookClass is the "logbook" service. Setup params: "writer" (io.Writer,
// stderr when absent) and "profile" ("ascii", "ansi", "ansi256",
// "truecolor"; detected from the writer when absent).
var BookClass = &tonic.Class{
	Name:    "book",
	Service: ServiceName,
	Setup:   []string{"writer", "profile"},
	New:     newBook,
	Ops: []tonic.Op{
		{Name: opWrite, Category: tonic.Event, Do: bookWrite},
	},
}

func newBook(t *tonic.Tonic) tonic.Registrant {
	b := &Book{Tonic: t, w: os.Stderr}
	if w, ok := t.Params()["writer"].(io.Writer); ok && w != nil {
		b.w = w
	}
	r := lipgloss.NewRenderer(b.w)
	if s, ok := t.Params().String("profile"); ok {
		if p, valid := parseProfile(s); valid {
			r.SetColorProfile(p)
		}
	}
	b.st = newStyles(r)
	return b
}

func bookWrite(r tonic.Registrant, payload any) error {
	b := r.(*Book)
	rec, ok := payload.(Record)
	if !ok {
		return fmt.Errorf("logbook: write payload %T, want Record", payload)
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	// A failed write must not surface as a handler error: the dispatcher
	// logs those, and when the default logger routes through this book the
	// failing write would just repeat. Degrade to bare stderr instead.
	if _, err := fmt.Fprintln(b.w, b.render(rec)); err != nil && b.w != os.Stderr {
		fmt.Fprintln(os.Stderr, rec.Message)
	}
	return nil
}

func (b *Book) render(rec Record) string {
	var sb strings.Builder
	sb.WriteString(b.st.time.Render(rec.Time.Format("15:04:05.000")))
	sb.WriteByte(' ')
	sb.WriteString(b.st.level(rec.Level).Render(fmt.Sprintf("%-5s", rec.Level.String())))
	sb.WriteByte(' ')
	id := "--"
	if rec.Essence != 0 {
		id = fmt.Sprintf("%02d", rec.Essence)
	}
	sb.WriteString(b.st.id.Render(id))
	if rec.Component != "" {
		sb.WriteByte(' ')
		sb.WriteString(b.st.comp.Render(rec.Component))
	}
	sb.WriteByte(' ')
	sb.WriteString(rec.Message)
	for _, a := range rec.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(b.st.attr.Render(a.String()))
	}
	return sb.String()
}

type styles struct {
	time  lipgloss.Style
	debug lipgloss.Style
	info  lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	id    lipgloss.Style
	comp  lipgloss.Style
	attr  lipgloss.Style
}

// Palette: muted, dark-terminal friendly.
func newStyles(r *lipgloss.Renderer) styles {
	var (
		green  = lipgloss.Color("76")
		red    = lipgloss.Color("204")
		yellow = lipgloss.Color("214")
		dim    = lipgloss.Color("243")
		faint  = lipgloss.Color("238")
	)
	return styles{
		time:  r.NewStyle().Foreground(faint),
		debug: r.NewStyle().Foreground(dim),
		info:  r.NewStyle().Foreground(green),
		warn:  r.NewStyle().Foreground(yellow),
		err:   r.NewStyle().Foreground(red).Bold(true),
		id:    r.NewStyle().Foreground(dim),
		comp:  r.NewStyle().Foreground(dim),
		attr:  r.NewStyle().Foreground(faint),
	}
}

func (s styles) level(l slog.Level) lipgloss.Style {
	switch {
	case l >= slog.LevelError:
		return s.err
	case l >= slog.LevelWarn:
		return s.warn
	case l >= slog.LevelInfo:
		return s.info
	default:
		return s.debug
	}
}

func parseProfile(s string) (termenv.Profile, bool) {
	switch strings.ToLower(s) {
	case "ascii":
		return termenv.Ascii, true
	case "ansi":
		return termenv.ANSI, true
	case "ansi256":
		return termenv.ANSI256, true
	case "truecolor":
		return termenv.TrueColor, true
	}
	return 0, false
}
