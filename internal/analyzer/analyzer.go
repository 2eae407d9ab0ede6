// Package analyzer declares the consumed surface of the analysis engine.
// The engine performs source translation and symbolic analysis elsewhere;
// this layer only sequences calls against it and reads back classified path
// results. Everything engine-owned stays opaque: path results are borrowed,
// never copied, and source references are resolved on demand.
package analyzer

import (
	"context"

	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/diag"
)

// SourceRef is an opaque pointer into the engine's source map. Only the
// engine that produced a ref can resolve it.
type SourceRef any

// PathStore is the engine-owned log/context store behind one analysis run.
type PathStore any

// LogKind distinguishes plain log lines from structured error records.
type LogKind uint8

const (
	LogMessage LogKind = iota
	LogErrorRecord
)

// LogSeverity grades a log entry as the engine classified it.
type LogSeverity uint8

const (
	SevLog LogSeverity = iota
	SevWarning
	SevError
)

func (s LogSeverity) String() string {
	switch s {
	case SevLog:
		return "log"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// LogEntry is one record in a path's log walk.
type LogEntry struct {
	Kind     LogKind
	Severity LogSeverity
	Message  string
	Ref      SourceRef
}

// TerminalValue is the value a path ended with. Error-shaped terminals carry
// their own message and source location.
type TerminalValue struct {
	IsError bool
	Message string
	Ref     SourceRef
}

// PathResult is one analyzed execution path, owned by the engine.
type PathResult interface {
	Logs() []LogEntry
	Terminal() TerminalValue
}

// PathCollection is one classification bucket of a completed run.
type PathCollection interface {
	Count() int
	ForEach(fn func(PathResult))
}

// PathSlice is a ready-made PathCollection over a fixed slice.
type PathSlice []PathResult

func (s PathSlice) Count() int { return len(s) }

func (s PathSlice) ForEach(fn func(PathResult)) {
	for _, p := range s {
		fn(p)
	}
}

// Result groups an analysis run's paths by terminal classification.
type Result struct {
	Success PathCollection
	Stopped PathCollection
	Failed  PathCollection
}

// Analyzer is one long-lived engine handle, exclusively owned by a single
// workspace. Implementations may run out of process; calls that can block
// take a context so an in-flight run can be abandoned.
type Analyzer interface {
	// SetOptions replaces the engine's active options.
	SetOptions(opts config.Options)

	// Validate reports whether the active options are usable.
	Validate() bool

	// TranslateAll loads and translates the entry program. A non-nil error
	// means the program could not be prepared for analysis.
	TranslateAll(ctx context.Context, entryPath string) error

	// Analyze runs the engine over the translated program.
	Analyze(ctx context.Context) (*Result, error)

	// SourceRange resolves an opaque ref to a file and range. ok is false
	// when the engine cannot map the ref.
	SourceRange(ref SourceRef) (filePath string, rng diag.Range, ok bool)

	// PathStore exposes the engine's log/context store for the last run.
	PathStore() PathStore

	// PrintLog writes the engine's own rendering of a result to its log
	// channel. Best effort; never interpreted by this layer.
	PrintLog(res *Result)

	// Reset discards in-progress and cached engine state. The handle stays
	// usable afterwards.
	Reset() error
}

// Factory creates one engine handle bound to a workspace root.
type Factory func(rootPath string) (Analyzer, error)
