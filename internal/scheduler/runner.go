// Package scheduler submits rendered batch scripts to the Slurm scheduler.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandRunner runs an external command to completion and captures its output.
type CommandRunner interface {
	// Run returns the command's stdout and stderr. A non-zero exit is reported
	// as an *exec.ExitError alongside the captured output.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner implements CommandRunner using raw OS processes.
type ExecRunner struct {
	// Dir is the working directory of the command. Empty means the current directory.
	Dir string
}

// NewExecRunner creates a process-based runner.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir}
}

// Run implements CommandRunner.Run using os/exec.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// exitCode extracts the process exit code, or -1 when the process never ran.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
