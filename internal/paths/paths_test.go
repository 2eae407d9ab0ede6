package paths

import (
	"testing"

	"github.com/ropas/pytea-sub003/internal/analyzer"
)

type stubPath struct{ name string }

func (p *stubPath) Logs() []analyzer.LogEntry        { return nil }
func (p *stubPath) Terminal() analyzer.TerminalValue { return analyzer.TerminalValue{} }

func bucket(n int) analyzer.PathCollection {
	out := make(analyzer.PathSlice, n)
	for i := range out {
		out[i] = &stubPath{}
	}
	return out
}

func TestClassifyAssignsDenseOrderedIDs(t *testing.T) {
	res := &analyzer.Result{
		Success: bucket(2),
		Stopped: bucket(1),
		Failed:  bucket(3),
	}
	batch := Classify(res)
	if len(batch) != 6 {
		t.Fatalf("expected 6 paths, got %d", len(batch))
	}
	wantStatus := []Status{
		StatusSuccess, StatusSuccess,
		StatusStopped,
		StatusFailed, StatusFailed, StatusFailed,
	}
	for i, p := range batch {
		if p.ID != i {
			t.Errorf("path %d: id = %d", i, p.ID)
		}
		if p.Status != wantStatus[i] {
			t.Errorf("path %d: status = %s, want %s", i, p.Status, wantStatus[i])
		}
	}
}

func TestClassifyNilAndEmpty(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Fatalf("expected nil batch for nil result, got %v", got)
	}
	if got := Classify(&analyzer.Result{}); len(got) != 0 {
		t.Fatalf("expected empty batch for empty result, got %d paths", len(got))
	}
}

func TestPropsProjection(t *testing.T) {
	raw := &stubPath{}
	batch := Classify(&analyzer.Result{Stopped: analyzer.PathSlice{raw}})
	props := PropsOf(batch)
	if len(props) != 1 {
		t.Fatalf("expected 1 props entry, got %d", len(props))
	}
	if props[0].ID != 0 || props[0].Status != "stopped" {
		t.Fatalf("unexpected props: %+v", props[0])
	}
	if batch[0].Raw() != raw {
		t.Fatal("path does not borrow the engine's raw result")
	}
}

func TestCounts(t *testing.T) {
	batch := Classify(&analyzer.Result{
		Success: bucket(2),
		Failed:  bucket(1),
	})
	success, stopped, failed := Counts(batch)
	if success != 2 || stopped != 0 || failed != 1 {
		t.Fatalf("counts = %d/%d/%d", success, stopped, failed)
	}
}
