package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockExecutor_ExactBeatsPrefix(t *testing.T) {
	m := NewMockExecutor(nil)
	m.AddPrefixMatch("git", []string{"rev-parse"}, MockResponse{Stdout: []byte("prefix\n")})
	m.AddExactMatch("git", []string{"rev-parse", "HEAD"}, MockResponse{Stdout: []byte("exact\n")})

	out, err := m.Output(context.Background(), "/repo", "git", "rev-parse", "HEAD")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(out) != "exact\n" {
		t.Errorf("Output() = %q, want exact", out)
	}

	out, err = m.Output(context.Background(), "/repo", "git", "rev-parse", "--verify", "main")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(out) != "prefix\n" {
		t.Errorf("Output() = %q, want prefix", out)
	}
}

func TestMockExecutor_LaterPrefixWins(t *testing.T) {
	m := NewMockExecutor(nil)
	m.AddPrefixMatch("git", []string{"push"}, MockResponse{Stdout: []byte("first")})
	m.AddPrefixMatch("git", []string{"push"}, MockResponse{Stdout: []byte("second")})

	out, _ := m.Output(context.Background(), "", "git", "push", "origin")
	if string(out) != "second" {
		t.Errorf("Output() = %q, want second", out)
	}
}

func TestMockExecutor_Unmatched(t *testing.T) {
	m := NewMockExecutor(nil)

	_, _, err := m.Run(context.Background(), "", "git", "status")
	if err == nil || !strings.Contains(err.Error(), "git status") {
		t.Errorf("Run() error = %v, want no-response error", err)
	}
}

func TestMockExecutor_ErrorIncludesStderr(t *testing.T) {
	m := NewMockExecutor(nil)
	m.AddExactMatch("git", []string{"fetch"}, MockResponse{
		Stderr: []byte("fatal: could not read Username\n"),
		Err:    errors.New("exit status 128"),
	})

	_, err := m.Output(context.Background(), "", "git", "fetch")
	if err == nil || !strings.Contains(err.Error(), "could not read Username") {
		t.Errorf("Output() error = %v, want stderr in message", err)
	}
}

func TestMockExecutor_RecordsCalls(t *testing.T) {
	m := NewMockExecutor(nil)
	m.AddPrefixMatch("git", nil, MockResponse{})

	_, _, _ = m.RunCommand(context.Background(), Command{
		Dir:   "/repo",
		Name:  "git",
		Args:  []string{"hash-object", "-w", "--stdin"},
		Env:   []string{"GIT_DIR=/repo/.git"},
		Stdin: []byte("blob"),
	})

	calls := m.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d, want 1", len(calls))
	}
	if calls[0].Dir != "/repo" || string(calls[0].Stdin) != "blob" || calls[0].Env[0] != "GIT_DIR=/repo/.git" {
		t.Errorf("recorded call = %+v", calls[0])
	}
}

func TestMockExecutor_Fallback(t *testing.T) {
	inner := NewMockExecutor(nil)
	inner.AddExactMatch("git", []string{"version"}, MockResponse{Stdout: []byte("git version 2.45")})
	outer := NewMockExecutor(inner)

	out, err := outer.Output(context.Background(), "", "git", "version")
	if err != nil || string(out) != "git version 2.45" {
		t.Errorf("Output() = %q, %v", out, err)
	}
}

func TestRealExecutor_Stdin(t *testing.T) {
	if !LookPath("cat") {
		t.Skip("cat not available")
	}
	e := NewRealExecutor()
	out, _, err := e.RunCommand(context.Background(), Command{Name: "cat", Stdin: []byte("hello")})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("RunCommand() = %q, want hello", out)
	}
}
