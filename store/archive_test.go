package store

import (
	"path/filepath"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "archive.db")

	a, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	src := NewTree()
	src.Set("machine/name", "press-1")
	src.Set("machine/speed", 42.5)
	src.Set("machine/enabled", true)
	src.Set("counters/total", 7)

	if err := a.Snapshot(src); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	dst := NewTree()
	if err := a.Restore(dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := dst.Get("machine/name"); got != "press-1" {
		t.Fatalf("machine/name = %v, want press-1", got)
	}
	if got := dst.Get("machine/speed"); got != 42.5 {
		t.Fatalf("machine/speed = %v, want 42.5", got)
	}
	if got := dst.Get("machine/enabled"); got != true {
		t.Fatalf("machine/enabled = %v, want true", got)
	}
	// Values round-trip through JSON: the int comes back as float64.
	if got := dst.Get("counters/total"); got != float64(7) {
		t.Fatalf("counters/total = %v (%T), want 7 (float64)", got, got)
	}
}

func TestSnapshotReplacesArchivedState(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "archive.db")

	a, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	first := NewTree()
	first.Set("old/key", "gone")
	if err := a.Snapshot(first); err != nil {
		t.Fatalf("first Snapshot: %v", err)
	}

	second := NewTree()
	second.Set("new/key", "kept")
	if err := a.Snapshot(second); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}

	dst := NewTree()
	if err := a.Restore(dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := dst.Get("old/key"); got != nil {
		t.Fatalf("old/key survived replacement: %v", got)
	}
	if got := dst.Get("new/key"); got != "kept" {
		t.Fatalf("new/key = %v, want kept", got)
	}
	if got := len(dst.Dump()); got != 1 {
		t.Fatalf("restored entries = %d, want 1", got)
	}
}
