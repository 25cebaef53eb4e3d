package askpass

import (
	"os"
	"slices"
	"strings"
	"testing"
)

func TestResponses(t *testing.T) {
	r := NewResponses(map[string]string{"Username: ": "alice"})
	if got, ok := r.Answer("Username: "); !ok || got != "alice" {
		t.Errorf("Answer(known) = %q, %v, want alice, true", got, ok)
	}
	if _, ok := r.Answer("Password: "); ok {
		t.Error("Answer(unknown) should not be ok")
	}
	r.Answer("Password: ")
	if got := r.Unanswered(); !slices.Equal(got, []string{"Password: "}) {
		t.Errorf("Unanswered() = %v, want [Password: ]", got)
	}
}

func TestServerRoundTrip(t *testing.T) {
	handler := NewResponses(map[string]string{"Password for 'https://example.com': ": "hunter2"})
	s, err := NewServer(handler)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	s.Start()

	got, err := Ask(s.SocketPath(), "Password for 'https://example.com': ")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Ask() = %q, want hunter2", got)
	}

	if _, err := Ask(s.SocketPath(), "Username: "); err == nil {
		t.Error("Ask(unanswered) should fail")
	}
	if got := handler.Unanswered(); !slices.Equal(got, []string{"Username: "}) {
		t.Errorf("Unanswered() = %v", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := os.Stat(s.SocketPath()); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Close: %v", err)
	}
}

func TestServerEnv(t *testing.T) {
	s, err := NewServer(NewResponses(nil))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	s.Start()
	defer s.Close()

	env := s.Env("/usr/local/bin/weft")
	want := map[string]string{
		SocketEnv:             s.SocketPath(),
		"GIT_ASKPASS":         "/usr/local/bin/weft askpass",
		"GIT_TERMINAL_PROMPT": "0",
	}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		if w, ok := want[k]; ok && v != w {
			t.Errorf("%s = %q, want %q", k, v, w)
		}
		delete(want, k)
	}
	if len(want) > 0 {
		t.Errorf("Env() missing %v", want)
	}
}
