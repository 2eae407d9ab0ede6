// Package remote drives the analysis engine as a subprocess speaking
// Content-Length framed JSON-RPC on its standard pipes. One subprocess
// serves one workspace; calls run strictly one at a time, and cancelling an
// in-flight call abandons the subprocess rather than leaving a response in
// the pipe.
package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/diag"
	"github.com/ropas/pytea-sub003/internal/jsonrpc"
)

// ErrNoCommand reports a factory configured without an engine command.
var ErrNoCommand = errors.New("no engine command configured")

// Factory launches one engine subprocess per workspace using argv.
func Factory(argv []string) analyzer.Factory {
	return func(root string) (analyzer.Analyzer, error) {
		if len(argv) == 0 {
			return nil, ErrNoCommand
		}
		return &engine{argv: argv, root: root}, nil
	}
}

type engine struct {
	argv []string
	root string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	seq     int64
	opts    config.Options
	optsErr error
	store   json.RawMessage
}

var _ analyzer.Analyzer = (*engine)(nil)

func (e *engine) SetOptions(opts config.Options) {
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
	_, err := e.call(context.Background(), "engine/setOptions", map[string]any{
		"options": optionsPayload(opts),
	})
	e.mu.Lock()
	e.optsErr = err
	e.mu.Unlock()
}

func (e *engine) Validate() bool {
	e.mu.Lock()
	pending := e.optsErr
	e.mu.Unlock()
	if pending != nil {
		return false
	}
	raw, err := e.call(context.Background(), "engine/validate", nil)
	if err != nil {
		return false
	}
	var res struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false
	}
	return res.OK
}

func (e *engine) TranslateAll(ctx context.Context, entryPath string) error {
	raw, err := e.call(ctx, "engine/translate", map[string]any{"entryPath": entryPath})
	if err != nil {
		return err
	}
	var res struct {
		Error *string `json:"error"`
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &res); err != nil {
			return fmt.Errorf("translate response: %w", err)
		}
	}
	if res.Error != nil {
		return errors.New(*res.Error)
	}
	return nil
}

func (e *engine) Analyze(ctx context.Context) (*analyzer.Result, error) {
	raw, err := e.call(ctx, "engine/analyze", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Success []pathPayload   `json:"success"`
		Stopped []pathPayload   `json:"stopped"`
		Failed  []pathPayload   `json:"failed"`
		Store   json.RawMessage `json:"store"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("analyze response: %w", err)
	}
	e.mu.Lock()
	e.store = res.Store
	e.mu.Unlock()
	return &analyzer.Result{
		Success: decodeBucket(res.Success),
		Stopped: decodeBucket(res.Stopped),
		Failed:  decodeBucket(res.Failed),
	}, nil
}

func (e *engine) SourceRange(ref analyzer.SourceRef) (string, diag.Range, bool) {
	raw, ok := ref.(json.RawMessage)
	if !ok || len(raw) == 0 {
		return "", diag.Range{}, false
	}
	payload, err := e.call(context.Background(), "engine/sourceRange", map[string]any{
		"ref": raw,
	})
	if err != nil || len(payload) == 0 || string(payload) == "null" {
		return "", diag.Range{}, false
	}
	var res struct {
		File  string     `json:"file"`
		Range diag.Range `json:"range"`
	}
	if err := json.Unmarshal(payload, &res); err != nil || res.File == "" {
		return "", diag.Range{}, false
	}
	return res.File, res.Range, true
}

func (e *engine) PathStore() analyzer.PathStore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

func (e *engine) PrintLog(*analyzer.Result) {
	// The engine renders its own last result; this side only triggers it.
	_, _ = e.call(context.Background(), "engine/printLog", nil)
}

func (e *engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = nil
	e.optsErr = nil
	return e.stopLocked()
}

// call sends one request and waits for its response. Cancellation kills the
// subprocess so no stale response can pair with a later request.
func (e *engine) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.startLocked(); err != nil {
		return nil, err
	}

	e.seq++
	id := json.RawMessage(strconv.FormatInt(e.seq, 10))
	req := jsonrpc.Message{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = payload
	}
	if err := jsonrpc.WriteMessage(e.stdin, &req); err != nil {
		_ = e.stopLocked()
		return nil, fmt.Errorf("engine %s: %w", method, err)
	}

	type outcome struct {
		msg *jsonrpc.Message
		err error
	}
	done := make(chan outcome, 1)
	stdout := e.stdout
	go func() {
		for {
			msg, err := jsonrpc.ReadMessage(stdout)
			if err != nil {
				done <- outcome{err: err}
				return
			}
			if string(msg.ID) == string(id) {
				done <- outcome{msg: msg}
				return
			}
			// Engine-initiated notifications are not part of this
			// protocol; drop anything unmatched.
		}
	}()

	select {
	case <-ctx.Done():
		_ = e.stopLocked()
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			_ = e.stopLocked()
			return nil, fmt.Errorf("engine %s: %w", method, out.err)
		}
		if out.msg.Error != nil {
			return nil, fmt.Errorf("engine %s: %w", method, out.msg.Error)
		}
		return out.msg.Result, nil
	}
}

func (e *engine) startLocked() error {
	if e.cmd != nil {
		return nil
	}
	cmd := exec.Command(e.argv[0], e.argv[1:]...)
	if e.root != "" {
		cmd.Dir = e.root
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	return nil
}

func (e *engine) stopLocked() error {
	if e.cmd == nil {
		return nil
	}
	_ = e.stdin.Close()
	err := e.cmd.Process.Kill()
	_ = e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

type logPayload struct {
	Kind     string          `json:"kind"`
	Severity string          `json:"severity"`
	Message  string          `json:"message"`
	Ref      json.RawMessage `json:"ref"`
}

type terminalPayload struct {
	IsError bool            `json:"isError"`
	Message string          `json:"message"`
	Ref     json.RawMessage `json:"ref"`
}

type pathPayload struct {
	Logs     []logPayload    `json:"logs"`
	Terminal terminalPayload `json:"terminal"`
}

type remotePath struct {
	logs []analyzer.LogEntry
	term analyzer.TerminalValue
}

func (p *remotePath) Logs() []analyzer.LogEntry        { return p.logs }
func (p *remotePath) Terminal() analyzer.TerminalValue { return p.term }

func decodeBucket(in []pathPayload) analyzer.PathCollection {
	out := make(analyzer.PathSlice, 0, len(in))
	for _, raw := range in {
		out = append(out, decodePath(raw))
	}
	return out
}

func decodePath(raw pathPayload) *remotePath {
	p := &remotePath{
		term: analyzer.TerminalValue{
			IsError: raw.Terminal.IsError,
			Message: raw.Terminal.Message,
			Ref:     refOf(raw.Terminal.Ref),
		},
	}
	for _, entry := range raw.Logs {
		p.logs = append(p.logs, analyzer.LogEntry{
			Kind:     logKind(entry.Kind),
			Severity: logSeverity(entry.Severity),
			Message:  entry.Message,
			Ref:      refOf(entry.Ref),
		})
	}
	return p
}

// refOf keeps absent refs nil so resolution skips them without a round
// trip.
func refOf(raw json.RawMessage) analyzer.SourceRef {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func logKind(s string) analyzer.LogKind {
	if s == "error" {
		return analyzer.LogErrorRecord
	}
	return analyzer.LogMessage
}

func logSeverity(s string) analyzer.LogSeverity {
	switch s {
	case "warning":
		return analyzer.SevWarning
	case "error":
		return analyzer.SevError
	}
	return analyzer.SevLog
}

// optionsPayload projects options into the engine's wire shape.
func optionsPayload(opts config.Options) map[string]any {
	payload := map[string]any{
		"entryPath":                opts.EntryPath,
		"immediateConstraintCheck": opts.ImmediateConstraintCheck,
		"ignoreAssert":             opts.IgnoreAssert,
		"logLevel":                 opts.LogLevel.String(),
	}
	if opts.PyteaLibPath != "" {
		payload["pyteaLibPath"] = opts.PyteaLibPath
	}
	if opts.PythonSubcommand != "" {
		payload["pythonSubcommand"] = opts.PythonSubcommand
	}
	if len(opts.PythonCmdArgs) > 0 {
		payload["pythonCmdArgs"] = opts.PythonCmdArgs
	}
	if len(opts.VariableRange) > 0 {
		ranges := make(map[string][]float64, len(opts.VariableRange))
		for name, vr := range opts.VariableRange {
			ranges[name] = []float64{vr.Min, vr.Max}
		}
		payload["variableRange"] = ranges
	}
	return payload
}
