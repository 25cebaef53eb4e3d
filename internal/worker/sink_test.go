package worker

import (
	"slices"
	"testing"
)

func TestRecordingSink(t *testing.T) {
	s := &RecordingSink{}
	s.Send(EventProgress, "a")
	s.Send(EventRepoStatus, "status")
	s.Send(EventProgress, "b")

	if got := s.Named(EventProgress); !slices.Equal(got, []any{"a", "b"}) {
		t.Errorf("Named() = %v, want [a b]", got)
	}
	if got := s.Drain(EventProgress); !slices.Equal(got, []any{"a", "b"}) {
		t.Errorf("Drain() = %v, want [a b]", got)
	}
	if got := s.Drain(EventProgress); len(got) != 0 {
		t.Errorf("second Drain() = %v, want nothing", got)
	}
	events := s.Events()
	if len(events) != 1 || events[0].Name != EventRepoStatus {
		t.Errorf("Events() = %v, want only the status event", events)
	}
}
