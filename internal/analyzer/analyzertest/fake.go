// Package analyzertest provides a scriptable in-memory engine for tests.
package analyzertest

import (
	"context"
	"sync"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/diag"
)

// Loc is a resolved source location for a scripted ref.
type Loc struct {
	File  string
	Range diag.Range
}

// Path is a fixed PathResult.
type Path struct {
	LogEntries []analyzer.LogEntry
	Term       analyzer.TerminalValue
}

func (p *Path) Logs() []analyzer.LogEntry        { return p.LogEntries }
func (p *Path) Terminal() analyzer.TerminalValue { return p.Term }

// Collect wraps paths into a bucket.
func Collect(paths ...*Path) analyzer.PathCollection {
	out := make(analyzer.PathSlice, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}

// Fake implements analyzer.Analyzer with scripted responses and call
// counters. The zero value validates successfully and returns an empty
// result.
type Fake struct {
	mu sync.Mutex

	// Scripted behavior.
	ValidateErr  bool // report options as invalid
	TranslateErr error
	Result       *analyzer.Result
	AnalyzeErr   error
	AnalyzeHook  func(ctx context.Context) // runs before Analyze returns
	Ranges       map[analyzer.SourceRef]Loc
	ResetErr     error

	// Observed calls.
	Opts          config.Options
	SetOptsCalls  int
	TranslateFor  []string
	AnalyzeCalls  int
	PrintLogCalls int
	ResetCalls    int
}

var _ analyzer.Analyzer = (*Fake)(nil)

func (f *Fake) SetOptions(opts config.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opts = opts
	f.SetOptsCalls++
}

func (f *Fake) Validate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ValidateErr
}

func (f *Fake) TranslateAll(_ context.Context, entryPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TranslateFor = append(f.TranslateFor, entryPath)
	return f.TranslateErr
}

func (f *Fake) Analyze(ctx context.Context) (*analyzer.Result, error) {
	f.mu.Lock()
	f.AnalyzeCalls++
	hook := f.AnalyzeHook
	res, err := f.Result, f.AnalyzeErr
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &analyzer.Result{}
	}
	return res, nil
}

func (f *Fake) SourceRange(ref analyzer.SourceRef) (string, diag.Range, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.Ranges[ref]
	if !ok {
		return "", diag.Range{}, false
	}
	return loc.File, loc.Range, true
}

func (f *Fake) PathStore() analyzer.PathStore { return nil }

func (f *Fake) PrintLog(*analyzer.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PrintLogCalls++
}

func (f *Fake) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCalls++
	return f.ResetErr
}

// Calls returns a snapshot of the counters that tests race against the
// session's detached log task.
func (f *Fake) Calls() (printLog, reset int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PrintLogCalls, f.ResetCalls
}

// Factory returns the same fake for every root and records created roots.
func Factory(f *Fake) analyzer.Factory {
	return func(string) (analyzer.Analyzer, error) {
		return f, nil
	}
}
