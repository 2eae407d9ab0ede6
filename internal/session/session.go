// Package session drives the analyze→classify→select→publish pipeline for
// one command at a time. Failures before the final batch replacement are
// logged and leave the workspace's previous result intact; intermediate
// state stays local to the call until the atomic replace.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/observ"
	"github.com/ropas/pytea-sub003/internal/paths"
	"github.com/ropas/pytea-sub003/internal/publish"
	"github.com/ropas/pytea-sub003/internal/resultstore"
	"github.com/ropas/pytea-sub003/internal/workspace"
)

// Config wires a session's collaborators.
type Config struct {
	Registry  *workspace.Registry
	Publisher *publish.Publisher
	Factory   analyzer.Factory

	// Store receives best-effort run summaries. Optional.
	Store *resultstore.Store

	// Logf is the session's log channel. Defaults to stderr.
	Logf func(format string, args ...any)

	// Timings enables per-phase timing summaries in the log.
	Timings bool
}

// Session executes analysis commands against the workspace set.
type Session struct {
	registry  *workspace.Registry
	publisher *publish.Publisher
	factory   analyzer.Factory
	store     *resultstore.Store
	logf      func(format string, args ...any)
	timings   bool

	mu     sync.Mutex
	lastWS *workspace.Workspace
}

// New creates a session from cfg.
func New(cfg Config) *Session {
	logf := cfg.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "session: "+format+"\n", args...)
		}
	}
	return &Session{
		registry:  cfg.Registry,
		publisher: cfg.Publisher,
		factory:   cfg.Factory,
		store:     cfg.Store,
		logf:      logf,
		timings:   cfg.Timings,
	}
}

// Analyze runs the full pipeline for entryPath and returns the batch's
// transport projections in id order. Aborts return nil: the failure is
// reported on the log channel only, and the workspace keeps its previous
// result.
func (s *Session) Analyze(ctx context.Context, entryPath string) []paths.Props {
	entry := config.CanonicalPath(entryPath)
	ws := s.registry.Resolve(entry)
	if err := ws.AwaitReady(ctx); err != nil {
		s.logf("analyze %s: %v", entry, err)
		return nil
	}

	// The engine handle is shared per workspace; overlapping runs would
	// pair one entry's translation with another entry's options.
	ws.BeginRun()
	defer ws.EndRun()

	// Analysis always starts from a clean published state.
	s.publisher.Retract(ws.Root)

	eng, err := ws.Analyzer(s.factory)
	if err != nil {
		s.logf("analyze %s: engine unavailable: %v", entry, err)
		return nil
	}

	var timer *observ.Timer
	if s.timings {
		timer = observ.NewTimer()
	}

	mergeIdx := timer.Begin(observ.PhaseMerge)
	opts := ws.Options()
	opts.EntryPath = config.ExpandVars(entry, ws.Root)
	merged, err := config.Merge(opts, ws.Root)
	timer.End(mergeIdx, "")
	if err != nil {
		s.logf("analyze %s: %v", entry, err)
		return nil
	}
	ws.ApplyOptions(merged)

	eng.SetOptions(merged)
	if !eng.Validate() {
		s.logf("analyze %s: options rejected by engine", entry)
		return nil
	}

	started := time.Now()
	translateIdx := timer.Begin(observ.PhaseTranslate)
	err = eng.TranslateAll(ctx, merged.EntryPath)
	timer.End(translateIdx, "")
	if err != nil {
		s.logf("translate %s: %v", entry, err)
		return nil
	}

	analyzeIdx := timer.Begin(observ.PhaseAnalyze)
	res, err := s.runEngine(ctx, eng)
	timer.End(analyzeIdx, "")
	if err != nil {
		s.logf("analyze %s: %v", entry, err)
		return nil
	}
	if ctx.Err() != nil {
		// Superseded mid-run: nothing of this run may become visible.
		s.logf("analyze %s: abandoned: %v", entry, ctx.Err())
		return nil
	}

	classifyIdx := timer.Begin(observ.PhaseClassify)
	batch := paths.Classify(res)
	timer.End(classifyIdx, fmt.Sprintf("%d paths", len(batch)))

	ws.ReplacePaths(batch)
	s.setLastWorkspace(ws)

	if s.timings {
		s.logf("analyze %s\n%s", entry, timer.Summary())
	}
	s.finishDetached(eng, res, ws, batch, merged, entry, time.Since(started))
	return paths.PropsOf(batch)
}

// runEngine awaits the engine run, converting an engine panic into an abort
// that keeps the process alive.
func (s *Session) runEngine(ctx context.Context, eng analyzer.Analyzer) (res *analyzer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine failure: %v", r)
		}
	}()
	return eng.Analyze(ctx)
}

// finishDetached schedules the best-effort work that must not block the
// caller: the engine's own log print and the summary write. Both only read
// the already-finalized batch.
func (s *Session) finishDetached(eng analyzer.Analyzer, res *analyzer.Result, ws *workspace.Workspace, batch []*paths.Path, merged config.Options, entry string, dur time.Duration) {
	go func() {
		if merged.LogLevel != config.LogNone {
			eng.PrintLog(res)
		}
		if s.store == nil {
			return
		}
		success, stopped, failed := paths.Counts(batch)
		sum := &resultstore.Summary{
			RunID:    uuid.NewString(),
			Entry:    entry,
			Root:     ws.Root,
			Options:  resultstore.DigestOptions(merged),
			Paths:    paths.PropsOf(batch),
			Success:  success,
			Stopped:  stopped,
			Failed:   failed,
			Duration: dur,
			When:     time.Now(),
		}
		if err := s.store.Save(sum); err != nil {
			s.logf("cache %s: %v", entry, err)
		}
	}()
}

// Select publishes diagnostics for the most recently analyzed workspace's
// path at index. Indexes that do not name a path are ignored.
func (s *Session) Select(ctx context.Context, index int) {
	ws := s.lastWorkspace()
	if ws == nil {
		return
	}
	s.SelectIn(ctx, ws, index)
}

// SelectIn publishes diagnostics for a specific workspace's path at index.
func (s *Session) SelectIn(_ context.Context, ws *workspace.Workspace, index int) {
	ws.BeginRun()
	defer ws.EndRun()
	batch := ws.Paths()
	if index < 0 || index >= len(batch) {
		return
	}
	eng := ws.CurrentAnalyzer()
	if eng == nil {
		return
	}
	if !ws.Select(index) {
		return
	}
	mapping := PathDiagnostics(eng, batch[index])
	s.publisher.Publish(ws.Root, mapping)
}

// Restart resets every workspace's engine handle and clears visible
// markers. Stored path batches survive a restart.
func (s *Session) Restart(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, ws := range s.registry.All() {
		s.publisher.Retract(ws.Root)
		g.Go(ws.ResetAnalyzer)
	}
	return g.Wait()
}

func (s *Session) setLastWorkspace(ws *workspace.Workspace) {
	s.mu.Lock()
	s.lastWS = ws
	s.mu.Unlock()
}

func (s *Session) lastWorkspace() *workspace.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWS
}
