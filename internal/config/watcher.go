package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports writes to project configuration files so a running server
// can re-merge options without a restart.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func(path string)

	mu     sync.Mutex
	dirs   map[string]struct{}
	files  map[string]struct{}
	closed bool
}

// NewWatcher starts a background watch loop. onChange receives the canonical
// path of every watched file that is written, created or removed.
func NewWatcher(onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		onChange: onChange,
		dirs:     make(map[string]struct{}),
		files:    make(map[string]struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers a configuration file. The parent directory is watched so
// editors that replace the file by rename are still observed.
func (w *Watcher) Watch(path string) error {
	canon := CanonicalPath(path)
	dir := filepath.Dir(filepath.FromSlash(canon))
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.files[canon] = struct{}{}
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	return nil
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			canon := CanonicalPath(ev.Name)
			w.mu.Lock()
			_, watched := w.files[canon]
			w.mu.Unlock()
			if watched {
				w.onChange(canon)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
