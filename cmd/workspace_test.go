package cmd

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/weft/internal/messages"
	"github.com/zhubert/weft/internal/mutations"
)

// runWeft runs the root command with args and returns what it printed.
func runWeft(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logRevset, logLimit, logInteractive = "", 0, false
	colocate, updateStale = false, false
	pushRemote, pushBookmark, fetchRemote = "", "", ""
	repoPath = "."

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return ansi.Strip(out.String()), err
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestWorkspaceCommands(t *testing.T) {
	requireGit(t)
	t.Setenv("WEFT_CONFIG_DIR", t.TempDir())
	dir := filepath.Join(t.TempDir(), "repo")

	out, err := runWeft(t, "init", dir)
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.HasPrefix(out, "Initialized workspace at ") {
		t.Errorf("init output = %q", out)
	}

	out, err = runWeft(t, "log", "-R", dir)
	if err != nil {
		t.Fatalf("log error = %v", err)
	}
	if !strings.HasPrefix(out, "@") {
		t.Errorf("log output = %q, want the working copy first", out)
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = runWeft(t, "snapshot", "-R", dir)
	if err != nil {
		t.Fatalf("snapshot error = %v", err)
	}
	if !strings.HasPrefix(out, "Working copy now at ") {
		t.Errorf("snapshot output = %q", out)
	}

	out, err = runWeft(t, "show", "-R", dir, "@")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "A new.txt") || !strings.Contains(out, "+hello") {
		t.Errorf("show output = %q, want the added file", out)
	}

	out, err = runWeft(t, "log", "-R", dir, "-r", "root()", "-n", "1")
	if err != nil {
		t.Fatalf("log -r error = %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 1 {
		t.Errorf("log -n 1 printed %d lines", lines)
	}

	if _, err := runWeft(t, "show", "-R", dir, "none()"); err == nil {
		t.Error("show none() succeeded")
	}
}

func TestOpenMissingWorkspace(t *testing.T) {
	t.Setenv("WEFT_CONFIG_DIR", t.TempDir())
	_, err := runWeft(t, "log", "-R", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "cannot open workspace") {
		t.Errorf("log error = %v, want a load error", err)
	}
}

func TestRepoConfigError(t *testing.T) {
	tests := []struct {
		cfg  messages.RepoConfig
		want string
	}{
		{messages.RepoConfig{Kind: messages.RepoConfigWorkspace}, ""},
		{messages.RepoConfig{Kind: messages.RepoConfigLoadError, AbsolutePath: "/x", Message: "no repo"}, "cannot open workspace at /x: no repo"},
		{messages.RepoConfig{Kind: messages.RepoConfigWorkerError, Message: "boom"}, "worker error: boom"},
	}
	for _, tt := range tests {
		err := repoConfigError(tt.cfg)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if got != tt.want {
			t.Errorf("repoConfigError(%s) = %q, want %q", tt.cfg.Kind, got, tt.want)
		}
	}
}

func TestWithInput(t *testing.T) {
	input := &messages.InputResponse{Fields: map[string]string{"Password": "secret"}}

	push := &mutations.GitPush{}
	if !withInput(push, input) || push.Input != input {
		t.Error("push did not take the input")
	}
	fetch := &mutations.GitFetch{}
	if !withInput(fetch, input) || fetch.Input != input {
		t.Error("fetch did not take the input")
	}
	if withInput(&mutations.UndoOperation{}, input) {
		t.Error("undo took credentials")
	}
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, nil)
	if out.String() != "Nothing changed.\n" {
		t.Errorf("printStatus(nil) = %q", out.String())
	}

	out.Reset()
	printStatus(&out, &messages.RepoStatus{
		OperationDescription: "snapshot working copy",
		OperationID:          "0123456789abcdef0123",
		WorkingCopy:          messages.ID{Hex: "fedcba9876543210"},
	})
	want := "Working copy now at fedcba98 (operation 0123456789ab: snapshot working copy)\n"
	if out.String() != want {
		t.Errorf("printStatus() = %q, want %q", out.String(), want)
	}
}
