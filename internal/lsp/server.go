// Package lsp runs the stdio JSON-RPC transport toward the host editor:
// lifecycle methods, command execution with per-request cancellation, the
// configuration channel, and outbound diagnostic publication.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/command"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/diag"
	"github.com/ropas/pytea-sub003/internal/jsonrpc"
	"github.com/ropas/pytea-sub003/internal/publish"
	"github.com/ropas/pytea-sub003/internal/resultstore"
	"github.com/ropas/pytea-sub003/internal/session"
	"github.com/ropas/pytea-sub003/internal/workspace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// ServerOptions configures server behavior.
type ServerOptions struct {
	// Factory creates engine handles for workspaces.
	Factory analyzer.Factory

	// Store receives best-effort run summaries. Optional.
	Store *resultstore.Store

	// Timings enables per-phase timing logs.
	Timings bool

	// WatchConfig re-merges a workspace's options when its project
	// configuration file changes on disk.
	WatchConfig bool
}

// Server handles stdio JSON-RPC for the analysis session.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	registry   *workspace.Registry
	publisher  *publish.Publisher
	session    *session.Session
	dispatcher *command.Dispatcher
	watcher    *config.Watcher

	mu                sync.Mutex
	settings          config.Settings
	haveSettings      bool
	pending           map[string]context.CancelFunc
	shutdownRequested bool
	watchConfig       bool
	baseCtx           context.Context
}

// NewServer constructs a server over the given transport pipes.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	s := &Server{
		in:          bufio.NewReader(in),
		out:         bufio.NewWriter(out),
		registry:    workspace.NewRegistry(),
		pending:     make(map[string]context.CancelFunc),
		watchConfig: opts.WatchConfig,
	}
	s.publisher = publish.New(s, s.logf)
	s.session = session.New(session.Config{
		Registry:  s.registry,
		Publisher: s.publisher,
		Factory:   opts.Factory,
		Store:     opts.Store,
		Logf:      s.logf,
		Timings:   opts.Timings,
	})
	s.dispatcher = command.New(s.session)
	return s
}

// Run serves requests until shutdown or transport EOF.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	defer s.closeWatcher()
	for {
		msg, err := jsonrpc.ReadMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *jsonrpc.Message) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg)
	case "$/cancelRequest":
		return s.handleCancelRequest(msg)
	default:
		if msg.IsRequest() {
			return s.sendError(msg.ID, &jsonrpc.Error{
				Code:    jsonrpc.CodeMethodNotFound,
				Message: "method not found",
			})
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *jsonrpc.Message) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, &jsonrpc.Error{
				Code:    jsonrpc.CodeInvalidParams,
				Message: "invalid params",
			})
		}
	}
	for _, root := range initializeRoots(params) {
		s.addWorkspace(root)
	}
	s.applySettings(params.InitializationOptions)

	// Hosts that send no initializationOptions still get configured
	// workspaces; defaults apply until didChangeConfiguration arrives.
	s.mu.Lock()
	configured := s.haveSettings
	s.mu.Unlock()
	if !configured {
		s.registry.SetConfigurator(s.configureWorkspace)
	}

	return s.sendResponse(msg.ID, initializeResult{
		Capabilities: serverCapabilities{
			ExecuteCommandProvider: &executeCommandOptions{
				Commands: command.Commands(),
			},
		},
	})
}

func initializeRoots(params initializeParams) []string {
	var roots []string
	if len(params.WorkspaceFolders) > 0 {
		for _, folder := range params.WorkspaceFolders {
			if path := filePath(folder.URI); path != "" {
				roots = append(roots, path)
			}
		}
		return roots
	}
	if path := filePath(params.RootURI); path != "" {
		return []string{path}
	}
	if params.RootPath != "" {
		return []string{params.RootPath}
	}
	return nil
}

func (s *Server) addWorkspace(root string) {
	ws := s.registry.Add(root)
	s.mu.Lock()
	watch := s.watchConfig
	s.mu.Unlock()
	if !watch {
		return
	}
	if err := s.watchProjectFile(ws.Root); err != nil {
		s.logf("watch %s: %v", ws.Root, err)
	}
}

func (s *Server) handleShutdown(msg *jsonrpc.Message) error {
	s.mu.Lock()
	s.shutdownRequested = true
	cancels := s.drainPendingLocked()
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	s.publisher.RetractAll()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidChangeConfiguration(msg *jsonrpc.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.applySettings(params.Settings)
	return nil
}

// applySettings decodes a transport settings payload and installs it as the
// registry's settings-application step. The payload may wrap the options in
// a "pytea" section or carry them directly.
func (s *Server) applySettings(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	payload := raw
	var wrapped struct {
		Pytea json.RawMessage `json:"pytea"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Pytea) > 0 {
		payload = wrapped.Pytea
	}
	settings, err := config.DecodeSettings(payload)
	if err != nil {
		s.logf("%v", err)
		return
	}
	s.mu.Lock()
	s.settings = settings
	s.haveSettings = true
	s.mu.Unlock()
	s.registry.SetConfigurator(s.configureWorkspace)
}

// configureWorkspace applies the current settings to one workspace, marking
// it ready. Settings errors log and fall back to defaults so a workspace
// can not stay blocked on a typo.
func (s *Server) configureWorkspace(ws *workspace.Workspace) {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()
	opts, err := settings.Apply(config.Default(), ws.Root)
	if err != nil {
		s.logf("configure %s: %v", ws.Root, err)
		opts = config.Default()
	}
	ws.ApplyOptions(opts)
}

func (s *Server) handleExecuteCommand(msg *jsonrpc.Message) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "invalid params",
		})
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	key := string(msg.ID)
	s.mu.Lock()
	s.pending[key] = cancel
	s.mu.Unlock()

	id := msg.ID
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.pending, key)
			s.mu.Unlock()
			cancel()
		}()
		result, err := s.dispatcher.Execute(ctx, params.Command, params.Arguments)
		if len(id) == 0 {
			return
		}
		if err != nil {
			var cmdErr *command.Error
			if errors.As(err, &cmdErr) {
				_ = s.sendError(id, &jsonrpc.Error{Code: cmdErr.Code, Message: cmdErr.Message})
				return
			}
			_ = s.sendError(id, &jsonrpc.Error{Code: jsonrpc.CodeInternal, Message: err.Error()})
			return
		}
		_ = s.sendResponse(id, result)
	}()
	return nil
}

func (s *Server) handleCancelRequest(msg *jsonrpc.Message) error {
	var params cancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.pending[string(params.ID)]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Send implements publish.Sender: one publishDiagnostics notification per
// file, an empty list clearing previously shown markers.
func (s *Server) Send(file string, diags []diag.Diagnostic) error {
	list := make([]lspDiagnostic, 0, len(diags))
	for _, d := range diags {
		list = append(list, lspDiagnostic{
			Range:    d.Range,
			Severity: int(d.Severity),
			Source:   "pytea",
			Message:  d.Message,
		})
	}
	return s.sendNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         fileURI(file),
		Diagnostics: list,
	})
}

func (s *Server) watchProjectFile(root string) error {
	if root == "" {
		return nil
	}
	s.mu.Lock()
	if s.watcher == nil {
		w, err := config.NewWatcher(s.onConfigChange)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.watcher = w
	}
	watcher := s.watcher
	s.mu.Unlock()
	return watcher.Watch(filepath.Join(filepath.FromSlash(root), config.ProjectFile))
}

// onConfigChange rebuilds a workspace's options after its project file
// changed on disk, so the next command sees fresh configuration. The merge
// starts from defaults plus transport settings; a key deleted from the file
// must not linger from the previous merge.
func (s *Server) onConfigChange(path string) {
	root := config.CanonicalPath(filepath.Dir(filepath.FromSlash(path)))
	ws := s.registry.Find(root)
	if ws == nil {
		return
	}
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()
	base, err := settings.Apply(config.Default(), ws.Root)
	if err != nil {
		s.logf("reload %s: %v", path, err)
		base = config.Default()
	}
	merged, err := config.Merge(base, ws.Root)
	if err != nil {
		s.logf("reload %s: %v", path, err)
		return
	}
	ws.ApplyOptions(merged)
	s.logf("reloaded configuration for %s", ws.Root)
}

func (s *Server) closeWatcher() {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if watcher != nil {
		_ = watcher.Close()
	}
}

func (s *Server) drainPendingLocked() []context.CancelFunc {
	out := make([]context.CancelFunc, 0, len(s.pending))
	for _, cancel := range s.pending {
		out = append(out, cancel)
	}
	s.pending = make(map[string]context.CancelFunc)
	return out
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func (s *Server) sendError(id json.RawMessage, rpcErr *jsonrpc.Error) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcErr,
	})
}

func (s *Server) sendNotification(method string, params any) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *Server) send(msg any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := jsonrpc.WriteMessage(s.out, msg); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pytea: "+format+"\n", args...)
}
