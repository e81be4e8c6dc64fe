// Package store is a process-wide hierarchical data store for tonic trees.
//
// A Tree holds values at /-separated paths ("machine/settings/speed") and
// hands out Item cursors for navigation. Writes notify subscribers
// synchronously on the writing goroutine; grouped writes coalesce into one
// burst per group. The optional Archive persists snapshots to sqlite, and
// Keeper wraps a Tree in the shared "store" service singleton.
package store

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// node is one entry in the flat path index. A node can carry a value, act
// as a pure container for children, or both.
type node struct {
	value    any
	hasValue bool
	children map[string]struct{}
}

// Tree is a thread-safe hierarchical store. Use NewTree; the zero value has
// no root node.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*node

	subMu   sync.Mutex
	subs    map[string][]*subscription
	lastTok Token
}

func NewTree() *Tree {
	return &Tree{
		nodes: map[string]*node{"": {children: make(map[string]struct{})}},
		subs:  make(map[string][]*subscription),
	}
}

// Set writes a value at path and notifies subscribers.
func (t *Tree) Set(path string, v any) { t.At(path).Set(v) }

// Get returns the value at path, nil when absent.
func (t *Tree) Get(path string) any {
	v, _ := t.value(clean(path))
	return v
}

// Entry is one flattened path/value pair.
type Entry struct {
	Path  string
	Value any
}

// Dump flattens the tree: every path holding a value, sorted by path.
// Container-only nodes are skipped.
func (t *Tree) Dump() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.nodes))
	for p, n := range t.nodes {
		if n.hasValue {
			out = append(out, Entry{Path: p, Value: n.value})
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out
}

// value reads one node.
func (t *Tree) value(path string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.nodes[path]; ok && n.hasValue {
		return n.value, true
	}
	return nil, false
}

// apply writes one value without notifying. The node chain is created as
// needed, under a single lock hold.
func (t *Tree) apply(path string, v any) {
	t.mu.Lock()
	n := t.ensure(path)
	n.value = v
	n.hasValue = true
	t.mu.Unlock()
}

// ensure creates the node chain down to path. Caller holds mu.
func (t *Tree) ensure(path string) *node {
	if n, ok := t.nodes[path]; ok {
		return n
	}
	cur := ""
	n := t.nodes[""]
	for _, part := range strings.Split(path, "/") {
		next := join(cur, part)
		child, ok := t.nodes[next]
		if !ok {
			child = &node{children: make(map[string]struct{})}
			t.nodes[next] = child
			t.nodes[cur].children[part] = struct{}{}
		}
		cur, n = next, child
	}
	return n
}

// appendChild creates the next "#N" child under base with value v, all in
// one critical section so concurrent appends cannot collide on an index.
func (t *Tree) appendChild(base string, v any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.ensure(base)
	next := 0
	for key := range parent.children {
		if n, ok := indexOf(key); ok && n >= next {
			next = n + 1
		}
	}
	key := "#" + strconv.Itoa(next)
	path := join(base, key)
	t.nodes[path] = &node{value: v, hasValue: true, children: make(map[string]struct{})}
	parent.children[key] = struct{}{}
	return path
}

func (t *Tree) childKeys(path string) []string {
	t.mu.RLock()
	n, ok := t.nodes[path]
	if !ok {
		t.mu.RUnlock()
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Slice(keys, func(a, b int) bool { return childLess(keys[a], keys[b]) })
	return keys
}

func (t *Tree) childCount(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.nodes[path]; ok {
		return len(n.children)
	}
	return 0
}

// removeSubtree unlinks path and everything below it, returning one event
// per removed value, sorted by path. Removing the root clears the tree but
// keeps the root node as anchor.
func (t *Tree) removeSubtree(path string) []Event {
	t.mu.Lock()
	n, ok := t.nodes[path]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	var events []Event
	var drop func(p string, n *node)
	drop = func(p string, n *node) {
		for key := range n.children {
			cp := join(p, key)
			if c, ok := t.nodes[cp]; ok {
				drop(cp, c)
			}
		}
		if n.hasValue {
			events = append(events, Event{Path: p})
		}
		if p == "" {
			n.value = nil
			n.hasValue = false
			n.children = make(map[string]struct{})
			return
		}
		delete(t.nodes, p)
	}
	drop(path, n)
	if path != "" {
		parentPath, key := "", path
		if j := strings.LastIndexByte(path, '/'); j >= 0 {
			parentPath, key = path[:j], path[j+1:]
		}
		if parent, ok := t.nodes[parentPath]; ok {
			delete(parent.children, key)
		}
	}
	t.mu.Unlock()
	sort.Slice(events, func(a, b int) bool { return events[a].Path < events[b].Path })
	return events
}

// clean normalizes a path: outer slashes trimmed, empty segments dropped.
// The empty string addresses the root.
func clean(path string) string {
	if !strings.ContainsRune(path, '/') {
		return path
	}
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

func join(base, rel string) string {
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	}
	return base + "/" + rel
}

// childLess orders auto-index keys numerically ("#2" before "#10") and
// everything else lexicographically.
func childLess(a, b string) bool {
	ai, aok := indexOf(a)
	bi, bok := indexOf(b)
	if aok && bok {
		return ai < bi
	}
	return a < b
}

// indexOf parses auto-index keys of the form "#N".
func indexOf(key string) (int, bool) {
	if !strings.HasPrefix(key, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(key[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
