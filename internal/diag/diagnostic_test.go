package diag

import (
	"reflect"
	"testing"
)

func TestMappingFilesSorted(t *testing.T) {
	m := Mapping{
		"/ws/b.py": {{Severity: SevWarning, Message: "w"}},
		"/ws/a.py": {{Severity: SevError, Message: "e"}},
		"/ws/c.py": nil,
	}
	got := m.Files()
	want := []string{"/ws/a.py", "/ws/b.py", "/ws/c.py"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Files() = %v, want %v", got, want)
	}
	if m.Total() != 2 {
		t.Fatalf("Total() = %d, want 2", m.Total())
	}
}

func TestEmptyMapping(t *testing.T) {
	var m Mapping
	if m.Files() != nil {
		t.Fatal("nil mapping produced files")
	}
	if m.Total() != 0 {
		t.Fatal("nil mapping counted diagnostics")
	}
}

func TestSeverityNames(t *testing.T) {
	cases := map[Severity]string{
		SevError:   "error",
		SevWarning: "warning",
		SevInfo:    "info",
		SevHint:    "hint",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}
