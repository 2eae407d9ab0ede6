package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/analyzer/analyzertest"
	"github.com/ropas/pytea-sub003/internal/jsonrpc"
	"github.com/ropas/pytea-sub003/internal/paths"
)

// syncBuffer lets the test read transport output while the server's command
// goroutines are still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

type harness struct {
	t      *testing.T
	server *Server
	out    *syncBuffer
	fake   *analyzertest.Fake
	root   string
}

func newHarness(t *testing.T, fake *analyzertest.Fake) *harness {
	t.Helper()
	out := &syncBuffer{}
	s := NewServer(strings.NewReader(""), out, ServerOptions{
		Factory: analyzertest.Factory(fake),
	})
	s.baseCtx = context.Background()
	return &harness{t: t, server: s, out: out, fake: fake, root: t.TempDir()}
}

func (h *harness) handle(id int, method string, params any) {
	h.t.Helper()
	msg := &jsonrpc.Message{JSONRPC: "2.0", Method: method}
	if id > 0 {
		msg.ID = json.RawMessage(fmt.Sprint(id))
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			h.t.Fatal(err)
		}
		msg.Params = raw
	}
	if err := h.server.handleMessage(msg); err != nil {
		h.t.Fatalf("%s: %v", method, err)
	}
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	h.handle(1, "initialize", map[string]any{
		"rootUri": fileURI(h.root),
		"initializationOptions": map[string]any{
			"pytea": map[string]any{"logLevel": "reduced"},
		},
	})
	if resp := h.waitResponse(t, 1); resp.Error != nil {
		t.Fatalf("initialize failed: %v", resp.Error)
	}
}

func (h *harness) messages(t *testing.T) []*jsonrpc.Message {
	t.Helper()
	r := bufio.NewReader(bytes.NewReader(h.out.snapshot()))
	var out []*jsonrpc.Message
	for {
		msg, err := jsonrpc.ReadMessage(r)
		if err != nil {
			// A snapshot may end inside a frame still being written.
			return out
		}
		out = append(out, msg)
	}
}

func (h *harness) waitResponse(t *testing.T, id int) *jsonrpc.Message {
	t.Helper()
	want := fmt.Sprint(id)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range h.messages(t) {
			if msg.Method == "" && string(msg.ID) == want {
				return msg
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no response for request %d; output:\n%s", id, h.out.snapshot())
	return nil
}

func (h *harness) entry(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	if err := os.WriteFile(path, []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func executeParams(cmd string, args ...any) map[string]any {
	return map[string]any{"command": cmd, "arguments": args}
}

func TestInitializeAdvertisesCommands(t *testing.T) {
	h := newHarness(t, &analyzertest.Fake{})
	h.initialize(t)

	resp := h.waitResponse(t, 1)
	var res initializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	cmds := res.Capabilities.ExecuteCommandProvider.Commands
	if len(cmds) != 3 || cmds[1] != "pytea.analyzeFile" {
		t.Fatalf("advertised commands = %v", cmds)
	}
}

func TestExecuteCommandAnalyzeAndSelect(t *testing.T) {
	termRef := analyzer.SourceRef("term")
	fake := &analyzertest.Fake{
		Result: &analyzer.Result{
			Success: analyzertest.Collect(&analyzertest.Path{}),
			Failed: analyzertest.Collect(&analyzertest.Path{
				Term: analyzer.TerminalValue{IsError: true, Message: "dim mismatch", Ref: termRef},
			}),
		},
		Ranges: map[analyzer.SourceRef]analyzertest.Loc{},
	}
	h := newHarness(t, fake)
	entry := h.entry(t, "main.py")
	fake.Ranges[termRef] = analyzertest.Loc{File: entry}
	h.initialize(t)

	h.handle(2, "workspace/executeCommand", executeParams("pytea.analyzeFile", entry))
	resp := h.waitResponse(t, 2)
	if resp.Error != nil {
		t.Fatalf("analyzeFile failed: %v", resp.Error)
	}
	var props []paths.Props
	if err := json.Unmarshal(resp.Result, &props); err != nil {
		t.Fatal(err)
	}
	if len(props) != 2 || props[0].Status != "success" || props[1].Status != "failed" {
		t.Fatalf("props = %v", props)
	}

	h.handle(3, "workspace/executeCommand", executeParams("pytea.selectPath", 1))
	h.waitResponse(t, 3)

	var published *publishDiagnosticsParams
	for _, msg := range h.messages(t) {
		if msg.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var params publishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			t.Fatal(err)
		}
		if len(params.Diagnostics) > 0 {
			published = &params
		}
	}
	if published == nil {
		t.Fatal("no diagnostics published for the selected path")
	}
	if published.URI != fileURI(entry) {
		t.Fatalf("diagnostics URI = %q", published.URI)
	}
	d := published.Diagnostics[0]
	if d.Message != "dim mismatch" || d.Severity != 1 || d.Source != "pytea" {
		t.Fatalf("diagnostic = %+v", d)
	}
}

func TestInitializeWithoutOptionsStillConfigures(t *testing.T) {
	fake := &analyzertest.Fake{
		Result: &analyzer.Result{Success: analyzertest.Collect(&analyzertest.Path{})},
	}
	h := newHarness(t, fake)
	entry := h.entry(t, "main.py")

	h.handle(1, "initialize", map[string]any{"rootUri": fileURI(h.root)})
	if resp := h.waitResponse(t, 1); resp.Error != nil {
		t.Fatalf("initialize failed: %v", resp.Error)
	}

	// Workspaces fall back to defaults; the command must not block on an
	// unconfigured workspace.
	h.handle(2, "workspace/executeCommand", executeParams("pytea.analyzeFile", entry))
	resp := h.waitResponse(t, 2)
	if resp.Error != nil {
		t.Fatalf("analyzeFile without init options failed: %v", resp.Error)
	}
	var props []paths.Props
	if err := json.Unmarshal(resp.Result, &props); err != nil {
		t.Fatal(err)
	}
	if len(props) != 1 {
		t.Fatalf("props = %v", props)
	}
}

func TestConfigChangeRebuildsFromDefaults(t *testing.T) {
	h := newHarness(t, &analyzertest.Fake{})
	h.initialize(t)
	ws := h.server.registry.Find(h.root)
	if ws == nil {
		t.Fatal("workspace not registered")
	}
	cfg := filepath.Join(h.root, "pyteaconfig.toml")

	if err := os.WriteFile(cfg, []byte("ignoreAssert = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.server.onConfigChange(cfg)
	if !ws.Options().IgnoreAssert {
		t.Fatal("project file value not applied")
	}

	// Deleting the key from the file must drop it back to the default.
	if err := os.WriteFile(cfg, []byte("pythonSubcommand = \"train\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.server.onConfigChange(cfg)
	opts := ws.Options()
	if opts.IgnoreAssert {
		t.Fatal("deleted key kept its previous value")
	}
	if opts.PythonSubcommand != "train" {
		t.Fatalf("new key not applied: %+v", opts)
	}
}

func TestExecuteCommandUnknown(t *testing.T) {
	h := newHarness(t, &analyzertest.Fake{})
	h.initialize(t)

	h.handle(2, "workspace/executeCommand", executeParams("pytea.frobnicate"))
	resp := h.waitResponse(t, 2)
	if resp.Error == nil {
		t.Fatal("unknown command succeeded")
	}
	if resp.Error.Code != 1 {
		t.Fatalf("error code = %d, want 1", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "Unsupported command: pytea.frobnicate") {
		t.Fatalf("error message = %q", resp.Error.Message)
	}
}

func TestUnknownMethodRequest(t *testing.T) {
	h := newHarness(t, &analyzertest.Fake{})
	h.initialize(t)

	h.handle(2, "textDocument/hover", map[string]any{})
	resp := h.waitResponse(t, 2)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestShutdownRetractsAndExitSucceeds(t *testing.T) {
	termRef := analyzer.SourceRef("term")
	fake := &analyzertest.Fake{
		Result: &analyzer.Result{
			Failed: analyzertest.Collect(&analyzertest.Path{
				Term: analyzer.TerminalValue{IsError: true, Message: "boom", Ref: termRef},
			}),
		},
		Ranges: map[analyzer.SourceRef]analyzertest.Loc{},
	}
	h := newHarness(t, fake)
	entry := h.entry(t, "main.py")
	fake.Ranges[termRef] = analyzertest.Loc{File: entry}
	h.initialize(t)

	h.handle(2, "workspace/executeCommand", executeParams("pytea.analyzeFile", entry))
	h.waitResponse(t, 2)
	h.handle(3, "workspace/executeCommand", executeParams("pytea.selectPath", 0))
	h.waitResponse(t, 3)

	h.handle(4, "shutdown", nil)
	h.waitResponse(t, 4)

	var cleared bool
	for _, msg := range h.messages(t) {
		if msg.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var params publishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			t.Fatal(err)
		}
		if params.URI == fileURI(entry) && len(params.Diagnostics) == 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("shutdown did not retract published diagnostics")
	}

	err := h.server.handleMessage(&jsonrpc.Message{JSONRPC: "2.0", Method: "exit"})
	if !errors.Is(err, ErrExit) {
		t.Fatalf("exit after shutdown returned %v", err)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	h := newHarness(t, &analyzertest.Fake{})
	err := h.server.handleMessage(&jsonrpc.Message{JSONRPC: "2.0", Method: "exit"})
	if !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("exit without shutdown returned %v", err)
	}
}

func TestCancelRequestAbandonsCommand(t *testing.T) {
	started := make(chan struct{})
	fake := &analyzertest.Fake{
		Result: &analyzer.Result{Success: analyzertest.Collect(&analyzertest.Path{})},
		AnalyzeHook: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
		},
	}
	h := newHarness(t, fake)
	entry := h.entry(t, "main.py")
	h.initialize(t)

	h.handle(2, "workspace/executeCommand", executeParams("pytea.analyzeFile", entry))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("command never reached the engine")
	}

	h.handle(0, "$/cancelRequest", map[string]any{"id": 2})
	resp := h.waitResponse(t, 2)
	if resp.Error != nil {
		t.Fatalf("abandoned command reported an error: %v", resp.Error)
	}
	var props []paths.Props
	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		if err := json.Unmarshal(resp.Result, &props); err != nil {
			t.Fatal(err)
		}
	}
	if len(props) != 0 {
		t.Fatalf("abandoned command still produced paths: %v", props)
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := "/ws/dir with space/main.py"
	uri := fileURI(path)
	if !strings.HasPrefix(uri, "file:///") {
		t.Fatalf("uri = %q", uri)
	}
	if got := filePath(uri); got != filepath.FromSlash(path) {
		t.Fatalf("round trip = %q, want %q", got, path)
	}
}

func TestFilePathInputs(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"file:///ws/main.py", "/ws/main.py"},
		{"file://localhost/ws/main.py", "/ws/main.py"},
		{"/ws/main.py", "/ws/main.py"},
		{"untitled:Untitled-1", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := filePath(tc.uri); got != filepath.FromSlash(tc.want) {
			t.Errorf("filePath(%q) = %q, want %q", tc.uri, got, tc.want)
		}
	}
}
