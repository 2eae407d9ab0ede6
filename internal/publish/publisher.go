// Package publish owns the "last thing shown" diagnostic state and the
// retract-before-publish invariant: a file never carries markers from two
// different analysis generations at once.
package publish

import (
	"sync"

	"github.com/ropas/pytea-sub003/internal/diag"
)

// Sender delivers one file's diagnostic list to the host. An empty list
// clears previously shown markers for that file.
type Sender interface {
	Send(filePath string, diags []diag.Diagnostic) error
}

// Publisher tracks the last published mapping per workspace root. Scoping
// per workspace keeps one visible workspace from retracting another's
// markers.
type Publisher struct {
	sender Sender
	logf   func(format string, args ...any)

	mu   sync.Mutex
	last map[string]diag.Mapping
}

// New creates a publisher over sender. logf may be nil.
func New(sender Sender, logf func(format string, args ...any)) *Publisher {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Publisher{
		sender: sender,
		logf:   logf,
		last:   make(map[string]diag.Mapping),
	}
}

// Retract publishes an empty diagnostic list for every file in the
// workspace's last published mapping, then forgets the mapping.
func (p *Publisher) Retract(root string) {
	p.mu.Lock()
	prev := p.last[root]
	delete(p.last, root)
	p.mu.Unlock()
	p.clear(prev)
}

// RetractAll retracts every workspace's published mapping.
func (p *Publisher) RetractAll() {
	p.mu.Lock()
	prevs := make([]diag.Mapping, 0, len(p.last))
	for _, m := range p.last {
		prevs = append(prevs, m)
	}
	p.last = make(map[string]diag.Mapping)
	p.mu.Unlock()
	for _, prev := range prevs {
		p.clear(prev)
	}
}

// Publish retracts the workspace's previous mapping, sends the new one file
// by file, and records it as current. Every file of the previous mapping is
// cleared first even when it reappears in the new mapping.
func (p *Publisher) Publish(root string, m diag.Mapping) {
	p.Retract(root)
	for _, file := range m.Files() {
		if err := p.sender.Send(file, m[file]); err != nil {
			p.logf("publish %s: %v", file, err)
		}
	}
	p.mu.Lock()
	p.last[root] = m
	p.mu.Unlock()
}

// Published reports whether the workspace currently has visible markers.
func (p *Publisher) Published(root string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.last[root]) > 0
}

func (p *Publisher) clear(prev diag.Mapping) {
	for _, file := range prev.Files() {
		if err := p.sender.Send(file, nil); err != nil {
			p.logf("retract %s: %v", file, err)
		}
	}
}
