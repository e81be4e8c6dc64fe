package store

import (
	"strings"

	"tonic"
)

// Token identifies one subscription for Unsubscribe.
type Token int64

// Event is one observed write. Writer is the essence id the write was
// grouped under, 0 for ungrouped writes. A removed value arrives as nil.
type Event struct {
	Path   string
	Value  any
	Writer tonic.ID
}

type subscription struct {
	token     Token
	fn        func(Event)
	recursive bool
	exclude   tonic.ID
}

// SubOption configures a subscription.
type SubOption func(*subscription)

// Recursive delivers descendant writes too, not only writes to the exact
// subscribed path.
func Recursive() SubOption {
	return func(s *subscription) { s.recursive = true }
}

// ExcludeWriter suppresses events grouped under the given essence, the
// usual guard against a tonic observing its own writes.
func ExcludeWriter(id tonic.ID) SubOption {
	return func(s *subscription) { s.exclude = id }
}

// Subscribe registers fn for writes at path. fn runs synchronously on the
// writing goroutine with no tree locks held; it may re-enter the tree but
// must not block.
func (t *Tree) Subscribe(path string, fn func(Event), opts ...SubOption) Token {
	s := &subscription{fn: fn}
	for _, opt := range opts {
		opt(s)
	}
	p := clean(path)
	t.subMu.Lock()
	t.lastTok++
	s.token = t.lastTok
	t.subs[p] = append(t.subs[p], s)
	t.subMu.Unlock()
	return s.token
}

// Unsubscribe drops the subscription. Unknown tokens are a no-op.
func (t *Tree) Unsubscribe(tok Token) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for p, list := range t.subs {
		for i, s := range list {
			if s.token == tok {
				t.subs[p] = append(list[:i:i], list[i+1:]...)
				if len(t.subs[p]) == 0 {
					delete(t.subs, p)
				}
				return
			}
		}
	}
}

// deliver fans events out. A write reaches subscribers on the written path
// itself and recursive subscribers on any ancestor, nearest first, in
// registration order within a path. Matching happens under the lock, the
// callbacks run after it is released.
func (t *Tree) deliver(events []Event) {
	if len(events) == 0 {
		return
	}
	type delivery struct {
		fn func(Event)
		ev Event
	}
	var out []delivery
	t.subMu.Lock()
	for _, ev := range events {
		for _, subPath := range ancestry(ev.Path) {
			for _, s := range t.subs[subPath] {
				if !s.recursive && subPath != ev.Path {
					continue
				}
				if s.exclude != 0 && s.exclude == ev.Writer {
					continue
				}
				out = append(out, delivery{s.fn, ev})
			}
		}
	}
	t.subMu.Unlock()
	for _, d := range out {
		d.fn(d.ev)
	}
}

// ancestry lists path and every ancestor up to the root: "a/b/c" yields
// ["a/b/c", "a/b", "a", ""].
func ancestry(path string) []string {
	out := []string{path}
	for path != "" {
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			path = path[:i]
		} else {
			path = ""
		}
		out = append(out, path)
	}
	return out
}
