package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCommand is the scheduler's submission binary.
const DefaultCommand = "sbatch"

// ErrSubmissionFailed marks a submission whose scheduler command could not run or exited non-zero.
var ErrSubmissionFailed = errors.New("submission failed")

var jobIDPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// SubmitError describes a failed scheduler invocation.
type SubmitError struct {
	Command  string
	ExitCode int // -1 when the command could not be started
	Stderr   string
	Err      error
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.ExitCode < 0 {
		msg = fmt.Sprintf("failed to run %s", e.Command)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmitError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Err}
}

// Receipt is the outcome of a scheduler invocation that exited successfully.
type Receipt struct {
	// JobID is only meaningful when Acknowledged is true.
	JobID int64
	// Acknowledged reports whether the scheduler's output carried a job id.
	Acknowledged bool
	// Output is the scheduler's standard output.
	Output string
}

// SubmitterConfig holds configuration for the submitter.
type SubmitterConfig struct {
	// Command is the submission binary (default: sbatch).
	Command string
	// Args are passed to Command before the script path.
	Args []string
	// ScriptDir is where temporary scripts are written. Empty means the OS temp dir.
	ScriptDir string
}

// Submitter writes scripts to temporary files and hands them to the scheduler.
type Submitter struct {
	runner CommandRunner
	config SubmitterConfig
}

// NewSubmitter creates a submitter. A nil runner uses an ExecRunner in the current directory.
func NewSubmitter(runner CommandRunner, config SubmitterConfig) *Submitter {
	if runner == nil {
		runner = NewExecRunner("")
	}
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	return &Submitter{runner: runner, config: config}
}

// Submit hands a rendered script to the scheduler.
//
// A scheduler that exits successfully without printing a job id yields an
// unacknowledged Receipt and a nil error. Errors are *SubmitError for failed
// invocations, or plain errors when the temporary script cannot be written.
func (s *Submitter) Submit(ctx context.Context, script string) (Receipt, error) {
	f, err := os.CreateTemp(s.config.ScriptDir, "hpcbench-*.sbatch")
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to create script file: %w", err)
	}
	scriptPath := f.Name()
	defer os.Remove(scriptPath)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return Receipt{}, fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Receipt{}, fmt.Errorf("failed to close script file: %w", err)
	}

	args := append(append([]string(nil), s.config.Args...), scriptPath)
	stdout, stderr, err := s.runner.Run(ctx, s.config.Command, args...)
	if err != nil {
		return Receipt{}, &SubmitError{
			Command:  s.config.Command,
			ExitCode: exitCode(err),
			Stderr:   string(stderr),
			Err:      err,
		}
	}

	output := string(stdout)
	id, ok := ParseJobID(output)
	return Receipt{JobID: id, Acknowledged: ok, Output: output}, nil
}

// ParseJobID extracts the job id from the scheduler's acknowledgement.
func ParseJobID(output string) (int64, bool) {
	m := jobIDPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
