package store

import "strings"

// Item is a cursor on one tree path. Items are cheap stateless views:
// holding one pins no data, and the path it points at need not exist.
type Item struct {
	tree *Tree
	path string
}

// At returns a cursor for an absolute path.
func (t *Tree) At(path string) *Item { return &Item{tree: t, path: clean(path)} }

// Path returns the absolute path of this cursor. The root is "".
func (i *Item) Path() string { return i.path }

// Value returns the value stored at this path and whether one was set.
func (i *Item) Value() (any, bool) { return i.tree.value(i.path) }

// Set writes the value at this path and notifies subscribers.
func (i *Item) Set(v any) {
	i.tree.apply(i.path, v)
	i.tree.deliver([]Event{{Path: i.path, Value: v}})
}

// Get returns a child's value, nil when absent.
func (i *Item) Get(rel string) any {
	v, _ := i.tree.value(join(i.path, clean(rel)))
	return v
}

// At returns a cursor for a path relative to this one.
func (i *Item) At(rel string) *Item {
	return &Item{tree: i.tree, path: join(i.path, clean(rel))}
}

// Parent returns the cursor one level up; the root is its own parent.
func (i *Item) Parent() *Item {
	if j := strings.LastIndexByte(i.path, '/'); j >= 0 {
		return &Item{tree: i.tree, path: i.path[:j]}
	}
	return &Item{tree: i.tree}
}

// Append creates the next auto-indexed child ("#0", "#1", ...) holding v
// and returns its cursor.
func (i *Item) Append(v any) *Item {
	path := i.tree.appendChild(i.path, v)
	i.tree.deliver([]Event{{Path: path, Value: v}})
	return &Item{tree: i.tree, path: path}
}

// Children returns cursors for the direct children, auto-index keys in
// numeric order, everything else lexicographic.
func (i *Item) Children() []*Item {
	keys := i.tree.childKeys(i.path)
	out := make([]*Item, len(keys))
	for j, k := range keys {
		out[j] = &Item{tree: i.tree, path: join(i.path, k)}
	}
	return out
}

// Len returns the number of direct children.
func (i *Item) Len() int { return i.tree.childCount(i.path) }

// Remove unlinks this path and its whole subtree, notifying a nil value
// for every path that held one.
func (i *Item) Remove() {
	i.tree.deliver(i.tree.removeSubtree(i.path))
}
