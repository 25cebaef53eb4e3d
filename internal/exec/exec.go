// Package exec abstracts running external commands so that code shelling
// out to git can be tested without a git binary.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
)

// Command describes one process invocation.
type Command struct {
	Dir   string
	Name  string
	Args  []string
	Env   []string // appended to the parent environment
	Stdin []byte
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandExecutor runs commands.
type CommandExecutor interface {
	// Run executes the command and returns stdout and stderr separately.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
	// Output executes the command and returns stdout.
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	// CombinedOutput executes the command and returns stdout and stderr interleaved.
	CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	// RunCommand executes a fully specified command.
	RunCommand(ctx context.Context, cmd Command) (stdout, stderr []byte, err error)
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

// NewRealExecutor returns an executor that runs real processes.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func (e *RealExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	return e.RunCommand(ctx, Command{Dir: dir, Name: name, Args: args})
}

func (e *RealExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := e.Run(ctx, dir, name, args...)
	if err != nil {
		return stdout, wrapStderr(err, stderr)
	}
	return stdout, nil
}

func (e *RealExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func (e *RealExecutor) RunCommand(ctx context.Context, c Command) ([]byte, []byte, error) {
	cmd := osexec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func wrapStderr(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

// LookPath reports whether a binary is on PATH.
func LookPath(name string) bool {
	_, err := osexec.LookPath(name)
	return err == nil
}
