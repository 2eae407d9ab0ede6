package workspace

import (
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ropas/pytea-sub003/internal/config"
)

const resolveMemoSize = 256

// Configurator applies the current settings to one workspace, ending with
// ApplyOptions so the workspace becomes ready.
type Configurator func(ws *Workspace)

// Registry owns the set of known workspaces. Resolution never fails: every
// file path maps to exactly one workspace, creating the shared fallback
// workspace on first use when nothing else qualifies.
type Registry struct {
	mu         sync.Mutex
	workspaces []*Workspace // registration order, non-empty roots only
	fallback   *Workspace
	configure  Configurator
	memo       *lru.Cache[string, *Workspace]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	memo, err := lru.New[string, *Workspace](resolveMemoSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Registry{memo: memo}
}

// Add registers a workspace root and returns its workspace. Re-adding a
// known root returns the existing workspace.
func (r *Registry) Add(root string) *Workspace {
	canon := config.CanonicalPath(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.workspaces {
		if ws.Root == canon {
			return ws
		}
	}
	ws := New(canon)
	r.workspaces = append(r.workspaces, ws)
	r.memo.Purge()
	if r.configure != nil {
		configure := r.configure
		go configure(ws)
	}
	return ws
}

// SetConfigurator installs the settings-application step and runs it on
// every known workspace. Workspaces created later, the fallback included,
// are configured asynchronously through the same step.
func (r *Registry) SetConfigurator(fn Configurator) {
	r.mu.Lock()
	r.configure = fn
	targets := r.allLocked()
	r.mu.Unlock()
	for _, ws := range targets {
		fn(ws)
	}
}

// All returns every known workspace, fallback included.
func (r *Registry) All() []*Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allLocked()
}

func (r *Registry) allLocked() []*Workspace {
	out := make([]*Workspace, 0, len(r.workspaces)+1)
	out = append(out, r.workspaces...)
	if r.fallback != nil {
		out = append(out, r.fallback)
	}
	return out
}

// Find returns the workspace registered at exactly root, if any.
func (r *Registry) Find(root string) *Workspace {
	canon := config.CanonicalPath(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.workspaces {
		if ws.Root == canon {
			return ws
		}
	}
	if r.fallback != nil && r.fallback.Root == canon {
		return r.fallback
	}
	return nil
}

// Resolve returns the workspace owning filePath: the innermost registered
// root containing it, the sole registered workspace when only one exists,
// or the shared fallback workspace otherwise.
func (r *Registry) Resolve(filePath string) *Workspace {
	canon := config.CanonicalPath(filePath)

	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.memo.Get(canon); ok {
		return ws
	}

	var best *Workspace
	for _, ws := range r.workspaces {
		if !pathWithinRoot(ws.Root, canon) {
			continue
		}
		// Innermost root wins; strict greater keeps the first-registered
		// workspace on equal length.
		if best == nil || len(ws.Root) > len(best.Root) {
			best = ws
		}
	}
	if best == nil {
		if len(r.workspaces) == 1 {
			best = r.workspaces[0]
		} else {
			best = r.fallbackLocked()
		}
	}
	r.memo.Add(canon, best)
	return best
}

// fallbackLocked lazily creates the shared fallback workspace. Settings
// application runs asynchronously through the same path as any other
// workspace, so callers must not assume the fallback is immediately ready.
func (r *Registry) fallbackLocked() *Workspace {
	if r.fallback != nil {
		return r.fallback
	}
	ws := New("")
	r.fallback = ws
	configure := r.configure
	go func() {
		if configure != nil {
			configure(ws)
			return
		}
		ws.ApplyOptions(config.Default())
	}()
	return ws
}

func pathWithinRoot(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	root = filepath.Clean(filepath.FromSlash(root))
	path = filepath.Clean(filepath.FromSlash(path))
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
