package worker

import (
	"sync"

	"github.com/zhubert/weft/internal/messages"
)

// Events pushed to the client outside of request replies.
const (
	EventRepoConfig = messages.EventRepoConfig
	EventRepoStatus = messages.EventRepoStatus
	EventProgress   = messages.EventProgress
	EventInput      = messages.EventInput
)

// EventSink receives events from a worker. Send is called from the worker
// goroutine only.
type EventSink interface {
	Send(event string, payload any) error
}

// Event is one recorded event.
type Event struct {
	Name    string
	Payload any
}

// RecordingSink keeps every event it is sent. It backs the CLI, which
// prints nothing until a command finishes, and the tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *RecordingSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Name: event, Payload: payload})
	return nil
}

// Events returns the events sent so far.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the payloads of the events called name.
func (s *RecordingSink) Named(name string) []any {
	var out []any
	for _, e := range s.Events() {
		if e.Name == name {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Drain removes the events called name and returns their payloads.
func (s *RecordingSink) Drain(name string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e.Payload)
		} else {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return out
}
