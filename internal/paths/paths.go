// Package paths models execution paths: the classified outcomes of one
// analysis run, numbered in a fixed global order and immutable once built.
package paths

import "github.com/ropas/pytea-sub003/internal/analyzer"

// Status is a path's terminal classification.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Path is one classified execution path. The raw result stays owned by the
// engine; Path borrows it for later log and source-range queries.
type Path struct {
	ID     int
	Status Status
	raw    analyzer.PathResult
}

// Raw returns the borrowed engine-owned result.
func (p *Path) Raw() analyzer.PathResult { return p.raw }

// Props is the transport-safe projection of a Path. It must never embed the
// raw engine result.
type Props struct {
	ID     int    `json:"id" msgpack:"id"`
	Status string `json:"status" msgpack:"status"`
}

// Props projects the path for the host.
func (p *Path) Props() Props {
	return Props{ID: p.ID, Status: p.Status.String()}
}

// Classify flattens a result into a dense ordered batch: success paths
// first, then stopped, then failed, with ids from 0 and no gaps.
func Classify(res *analyzer.Result) []*Path {
	if res == nil {
		return nil
	}
	var out []*Path
	add := func(bucket analyzer.PathCollection, status Status) {
		if bucket == nil {
			return
		}
		bucket.ForEach(func(raw analyzer.PathResult) {
			out = append(out, &Path{ID: len(out), Status: status, raw: raw})
		})
	}
	add(res.Success, StatusSuccess)
	add(res.Stopped, StatusStopped)
	add(res.Failed, StatusFailed)
	return out
}

// PropsOf projects a whole batch in id order.
func PropsOf(batch []*Path) []Props {
	if batch == nil {
		return nil
	}
	out := make([]Props, len(batch))
	for i, p := range batch {
		out[i] = p.Props()
	}
	return out
}

// Counts tallies a batch per status in classification order.
func Counts(batch []*Path) (success, stopped, failed int) {
	for _, p := range batch {
		switch p.Status {
		case StatusSuccess:
			success++
		case StatusStopped:
			stopped++
		case StatusFailed:
			failed++
		}
	}
	return success, stopped, failed
}
