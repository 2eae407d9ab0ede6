package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsWatchedFileWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, ProjectFile)
	other := filepath.Join(dir, "notes.txt")

	changes := make(chan string, 8)
	w, err := NewWatcher(func(path string) { changes <- path })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(target); err != nil {
		t.Fatal(err)
	}

	// Writes to unrelated files in the same directory stay silent.
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("ignoreAssert = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changes:
		if got != CanonicalPath(target) {
			t.Fatalf("change reported for %q, want %q", got, target)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported for the project file")
	}

	select {
	case got := <-changes:
		if got != CanonicalPath(target) {
			t.Fatalf("unexpected change for %q", got)
		}
	default:
	}
}

func TestWatchAfterCloseIsNoop(t *testing.T) {
	w, err := NewWatcher(func(string) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(filepath.Join(t.TempDir(), ProjectFile)); err != nil {
		t.Fatalf("watch after close: %v", err)
	}
}
