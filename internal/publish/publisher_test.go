package publish

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ropas/pytea-sub003/internal/diag"
)

type sendEvent struct {
	File  string
	Count int
}

type recorder struct {
	mu     sync.Mutex
	events []sendEvent
	fail   map[string]error
}

func (r *recorder) Send(filePath string, diags []diag.Diagnostic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sendEvent{File: filePath, Count: len(diags)})
	if err := r.fail[filePath]; err != nil {
		return err
	}
	return nil
}

func (r *recorder) take() []sendEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func warnAt(file string) diag.Mapping {
	return diag.Mapping{file: {{Severity: diag.SevWarning, Message: "w"}}}
}

func TestPublishRetractsPreviousGenerationFirst(t *testing.T) {
	rec := &recorder{}
	pub := New(rec, nil)

	pub.Publish("/ws", diag.Mapping{
		"/ws/a.py": {{Severity: diag.SevError, Message: "boom"}},
		"/ws/b.py": {{Severity: diag.SevWarning, Message: "w"}},
	})
	got := rec.take()
	want := []sendEvent{{"/ws/a.py", 1}, {"/ws/b.py", 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("first publish events = %v, want %v", got, want)
	}

	// The old files, b.py included, are cleared before anything new shows.
	pub.Publish("/ws", warnAt("/ws/b.py"))
	got = rec.take()
	want = []sendEvent{{"/ws/a.py", 0}, {"/ws/b.py", 0}, {"/ws/b.py", 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("second publish events = %v, want %v", got, want)
	}
}

func TestRetractScopedPerWorkspace(t *testing.T) {
	rec := &recorder{}
	pub := New(rec, nil)
	pub.Publish("/one", warnAt("/one/a.py"))
	pub.Publish("/two", warnAt("/two/a.py"))
	rec.take()

	pub.Retract("/one")
	got := rec.take()
	if len(got) != 1 || got[0].File != "/one/a.py" || got[0].Count != 0 {
		t.Fatalf("retract events = %v", got)
	}
	if pub.Published("/one") {
		t.Fatal("retracted workspace still reports visible markers")
	}
	if !pub.Published("/two") {
		t.Fatal("retract of /one cleared /two's state")
	}
}

func TestRetractIsIdempotent(t *testing.T) {
	rec := &recorder{}
	pub := New(rec, nil)
	pub.Publish("/ws", warnAt("/ws/a.py"))
	rec.take()

	pub.Retract("/ws")
	pub.Retract("/ws")
	got := rec.take()
	if len(got) != 1 {
		t.Fatalf("second retract sent extra clears: %v", got)
	}
}

func TestRetractAll(t *testing.T) {
	rec := &recorder{}
	pub := New(rec, nil)
	pub.Publish("/one", warnAt("/one/a.py"))
	pub.Publish("/two", warnAt("/two/a.py"))
	rec.take()

	pub.RetractAll()
	got := rec.take()
	if len(got) != 2 {
		t.Fatalf("expected 2 clears, got %v", got)
	}
	for _, ev := range got {
		if ev.Count != 0 {
			t.Fatalf("RetractAll published non-empty list: %v", ev)
		}
	}
	if pub.Published("/one") || pub.Published("/two") {
		t.Fatal("state survived RetractAll")
	}
}

func TestPublishRecordsMappingDespiteSendFailure(t *testing.T) {
	rec := &recorder{fail: map[string]error{"/ws/a.py": errors.New("pipe closed")}}
	var logged []string
	pub := New(rec, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})

	pub.Publish("/ws", warnAt("/ws/a.py"))
	if !pub.Published("/ws") {
		t.Fatal("failed send must still record the mapping for later retraction")
	}
	if len(logged) != 1 {
		t.Fatalf("expected 1 logged failure, got %v", logged)
	}
}
