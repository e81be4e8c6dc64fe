package store

import "tonic"

// Batch collects grouped writes. Values land in the tree immediately, so
// reads inside the group see them, but notifications wait for the group
// end, coalesced per path with the last written value. Event order follows
// the first write to each path.
type Batch struct {
	tree   *Tree
	writer tonic.ID
	index  map[string]int
	events []Event
}

// Group runs fn with a batch stamped with the writer id and flushes the
// coalesced notifications when fn returns.
func (t *Tree) Group(writer tonic.ID, fn func(*Batch)) {
	b := &Batch{tree: t, writer: writer, index: make(map[string]int)}
	fn(b)
	t.deliver(b.events)
}

// Set writes through to the tree and records the notification.
func (b *Batch) Set(path string, v any) {
	p := clean(path)
	b.tree.apply(p, v)
	b.record(p, v)
}

// Append creates the next auto-indexed child under base, returning its
// path.
func (b *Batch) Append(base string, v any) string {
	p := b.tree.appendChild(clean(base), v)
	b.record(p, v)
	return p
}

func (b *Batch) record(path string, v any) {
	if i, ok := b.index[path]; ok {
		b.events[i].Value = v
		return
	}
	b.index[path] = len(b.events)
	b.events = append(b.events, Event{Path: path, Value: v, Writer: b.writer})
}
