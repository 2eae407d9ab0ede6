// Package diag defines the flat diagnostic model published to the host
// editor: a (severity, message, range) tuple grouped per file. It carries no
// engine state, so batches can be compared, cached and serialized freely.
package diag

import "sort"

// Position is a zero-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open source region in zero-based coordinates.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is one marker shown against source code.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Range    Range    `json:"range"`
}

// Mapping groups diagnostics by absolute file path. Slices keep discovery
// order; the map itself is unordered, use Files for a stable walk.
type Mapping map[string][]Diagnostic

// Files returns the mapped file paths in sorted order.
func (m Mapping) Files() []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for file := range m {
		out = append(out, file)
	}
	sort.Strings(out)
	return out
}

// Total counts diagnostics across all files.
func (m Mapping) Total() int {
	n := 0
	for _, list := range m {
		n += len(list)
	}
	return n
}
