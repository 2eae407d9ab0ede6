// Package command routes named host commands onto the session, enforcing
// the at-most-one-in-flight policy: a newly arriving command cancels the
// pending one, whose eventual result the caller must discard.
package command

import (
	"context"
	"fmt"
	"sync"

	"fortio.org/safecast"

	"github.com/ropas/pytea-sub003/internal/session"
)

// Command identifiers accepted from the host.
const (
	RestartServer = "pytea.restartServer"
	AnalyzeFile   = "pytea.analyzeFile"
	SelectPath    = "pytea.selectPath"
)

// Commands lists every routed identifier, for capability advertisement.
func Commands() []string {
	return []string{RestartServer, AnalyzeFile, SelectPath}
}

// CodeUnsupported marks a command identifier this server does not route.
const CodeUnsupported = 1

// Error is the structured failure surfaced to the host for a command.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Dispatcher serializes command execution over one session.
type Dispatcher struct {
	session *session.Session

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc
	run    sync.Mutex // serializes command bodies
}

// New creates a dispatcher over sess.
func New(sess *session.Session) *Dispatcher {
	return &Dispatcher{session: sess}
}

// Execute routes one host command and returns its result payload: path
// props for analyzeFile, nil otherwise. Unknown identifiers fail with an
// *Error of code CodeUnsupported before touching any state.
func (d *Dispatcher) Execute(ctx context.Context, name string, args []any) (any, error) {
	switch name {
	case RestartServer, AnalyzeFile, SelectPath:
	default:
		return nil, &Error{
			Code:    CodeUnsupported,
			Message: fmt.Sprintf("Unsupported command: %s", name),
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	if d.cancel != nil {
		// Supersede the pending command before waiting for its slot.
		d.cancel()
	}
	d.cancel = cancel
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	if ctx.Err() != nil {
		// Superseded before the body started; effects must not happen.
		return nil, ctx.Err()
	}

	switch name {
	case RestartServer:
		return nil, d.session.Restart(ctx)
	case AnalyzeFile:
		entry, err := stringArg(args, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return d.session.Analyze(ctx, entry), nil
	default: // SelectPath
		index, err := indexArg(args, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		d.session.Select(ctx, index)
		return nil, nil
	}
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i, args[i])
	}
	return s, nil
}

// indexArg coerces a JSON-decoded argument to an int index. JSON numbers
// arrive as float64.
func indexArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case float64:
		idx, err := safecast.Convert[int](v)
		if err != nil {
			return 0, fmt.Errorf("argument %d: %w", i, err)
		}
		return idx, nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("argument %d: want number, got %T", i, args[i])
	}
}
