package lsp

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ropas/pytea-sub003/internal/diag"
)

type initializeParams struct {
	RootURI               string            `json:"rootUri,omitempty"`
	RootPath              string            `json:"rootPath,omitempty"`
	WorkspaceFolders      []workspaceFolder `json:"workspaceFolders,omitempty"`
	InitializationOptions json.RawMessage   `json:"initializationOptions,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type executeCommandOptions struct {
	Commands []string `json:"commands"`
}

type serverCapabilities struct {
	ExecuteCommandProvider *executeCommandOptions `json:"executeCommandProvider,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
}

type executeCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

type cancelParams struct {
	ID json.RawMessage `json:"id"`
}

type didChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type publishDiagnosticsParams struct {
	URI         string          `json:"uri"`
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type lspDiagnostic struct {
	Range    diag.Range `json:"range"`
	Severity int        `json:"severity,omitempty"`
	Source   string     `json:"source,omitempty"`
	Message  string     `json:"message"`
}

// fileURI renders a local path as a file scheme URI.
func fileURI(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// filePath extracts the absolute local path from a file URI. Non-file
// schemes and malformed URIs map to "", which callers treat as absent.
func filePath(uri string) string {
	if uri == "" {
		return ""
	}
	rest, isFile := strings.CutPrefix(uri, "file://")
	if !isFile {
		// Any other scheme names a resource without a local path.
		if i := strings.IndexByte(uri, ':'); i >= 0 && !strings.ContainsAny(uri[:i], "/\\") {
			return ""
		}
		rest = uri
	}
	// Some hosts emit an authority component before the path.
	if isFile && !strings.HasPrefix(rest, "/") {
		_, tail, ok := strings.Cut(rest, "/")
		if !ok {
			return ""
		}
		rest = "/" + tail
	}
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	path := filepath.FromSlash(rest)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}
