// Package workspace holds per-root session state and resolves which root
// owns an arbitrary file path.
package workspace

import (
	"context"
	"sync"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/paths"
)

// Workspace is the session state for one project root. The empty root ""
// denotes the shared fallback workspace for files outside every root.
type Workspace struct {
	// Root is the canonical project root path, fixed at creation.
	Root string

	mu       sync.Mutex
	opts     config.Options
	handle   analyzer.Analyzer
	batch    []*paths.Path
	selected int

	// runMu serializes command bodies for this workspace. Concurrent
	// commands for different workspaces stay independent.
	runMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a workspace that is not yet ready: commands needing settings
// must wait until initial configuration has been applied.
func New(root string) *Workspace {
	return &Workspace{
		Root:  config.CanonicalPath(root),
		opts:  config.Default(),
		ready: make(chan struct{}),
	}
}

// Ready is closed once initial configuration has been applied.
func (w *Workspace) Ready() <-chan struct{} { return w.ready }

// AwaitReady blocks until the workspace is configured or ctx ends.
func (w *Workspace) AwaitReady(ctx context.Context) error {
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginRun claims the workspace's exclusive run slot. The engine handle is
// shared by every command that resolves here, so two commands must never
// interleave their mutating steps against it.
func (w *Workspace) BeginRun() { w.runMu.Lock() }

// EndRun releases the run slot.
func (w *Workspace) EndRun() { w.runMu.Unlock() }

// ApplyOptions replaces the stored options wholesale and marks the
// workspace ready.
func (w *Workspace) ApplyOptions(opts config.Options) {
	w.mu.Lock()
	w.opts = opts
	w.mu.Unlock()
	w.readyOnce.Do(func() { close(w.ready) })
}

// Options returns the current stored options.
func (w *Workspace) Options() config.Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts
}

// Analyzer returns the engine handle, creating one bound to this workspace
// on first use. The handle is exclusively owned here and never shared.
func (w *Workspace) Analyzer(factory analyzer.Factory) (analyzer.Analyzer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle != nil {
		return w.handle, nil
	}
	handle, err := factory(w.Root)
	if err != nil {
		return nil, err
	}
	handle.SetOptions(config.Default())
	w.handle = handle
	return w.handle, nil
}

// CurrentAnalyzer returns the engine handle if one exists.
func (w *Workspace) CurrentAnalyzer() analyzer.Analyzer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// ResetAnalyzer clears engine state after a restart command. The stored
// path batch survives: restart resets the engine, not the session view.
func (w *Workspace) ResetAnalyzer() error {
	w.mu.Lock()
	handle := w.handle
	w.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Reset()
}

// ReplacePaths installs a completed run's batch and resets the selection.
// The previous batch is discarded as a whole.
func (w *Workspace) ReplacePaths(batch []*paths.Path) {
	w.mu.Lock()
	w.batch = batch
	w.selected = 0
	w.mu.Unlock()
}

// Paths returns the most recent completed batch. Callers must not mutate it.
func (w *Workspace) Paths() []*paths.Path {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batch
}

// Selected returns the current selection index into Paths.
func (w *Workspace) Selected() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// Select records a new selection. Out-of-range indexes are rejected.
func (w *Workspace) Select(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.batch) {
		return false
	}
	w.selected = index
	return true
}
