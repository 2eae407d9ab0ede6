// Package observ tracks per-phase timings of an analysis run.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Phase names used by the analysis session.
const (
	PhaseMerge     = "merge_options"
	PhaseTranslate = "translate"
	PhaseAnalyze   = "analyze"
	PhaseClassify  = "classify"
)

// Phase records the duration and note of one pipeline step.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks the execution time of the analysis phases of one run.
type Timer struct {
	phases []Phase
}

// NewTimer creates an empty timer.
func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 4)} }

// Begin starts a phase and returns its index. Nil timers are inert.
func (t *Timer) Begin(name string) int {
	if t == nil {
		return -1
	}
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now()})
	return len(t.phases) - 1
}

// End finishes a phase by index.
func (t *Timer) End(idx int, note string) {
	if t == nil || idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
}

// Total sums all finished phases.
func (t *Timer) Total() time.Duration {
	if t == nil {
		return 0
	}
	var total time.Duration
	for _, p := range t.phases {
		total += p.Dur
	}
	return total
}

// Summary renders a human-readable timing block.
func (t *Timer) Summary() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range t.phases {
		fmt.Fprintf(&b, "  %-16s %8.2f ms", p.Name, float64(p.Dur.Microseconds())/1000)
		if p.Note != "" {
			b.WriteString("  " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-16s %8.2f ms\n", "total", float64(t.Total().Microseconds())/1000)
	return b.String()
}

// Report is the serializable form of a timer.
type Report struct {
	Phases  []PhaseReport `json:"phases"`
	TotalMS float64       `json:"total_ms"`
}

// PhaseReport is one phase of a Report.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report converts the timer for serialization.
func (t *Timer) Report() Report {
	if t == nil {
		return Report{}
	}
	out := Report{Phases: make([]PhaseReport, 0, len(t.phases))}
	for _, p := range t.phases {
		ms := float64(p.Dur.Microseconds()) / 1000
		out.Phases = append(out.Phases, PhaseReport{Name: p.Name, DurationMS: ms, Note: p.Note})
		out.TotalMS += ms
	}
	return out
}
