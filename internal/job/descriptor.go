// Package job describes a single benchmark run and renders it into a Slurm batch script.
package job

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidDescriptor is returned by Validate when a descriptor cannot be rendered into a usable script.
var ErrInvalidDescriptor = errors.New("invalid job descriptor")

// DefaultLaunchCommand is the scheduler's job-launch command used on the run line.
const DefaultLaunchCommand = "srun"

var (
	timeoutPattern = regexp.MustCompile(`^[0-9]+:[0-9]{2}$`)
	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Resources is the resource request forwarded to the scheduler.
type Resources struct {
	CoreCount int
	Timeout   string // "HH:MM", passed through to --time
	MemoryMB  int
}

// EnvVar is a single exported environment variable.
type EnvVar struct {
	Name  string
	Value string
}

// Directive is an additional scheduler option rendered as "#SBATCH --Key=Value".
type Directive struct {
	Key   string
	Value string
}

// Descriptor is the structured description of one benchmark run.
// Slices are ordered: their order is the order of the rendered lines.
type Descriptor struct {
	// Directory is the variant's build root.
	Directory string
	// BuildSteps run in order after changing into Directory.
	BuildSteps []string
	// Executable is relative to Directory.
	Executable string
	// Args is passed verbatim to the executable.
	Args      string
	Resources Resources
	Env       []EnvVar
	Modules   []string
	Options   []Directive

	// Label names the run and its output files. Optional.
	Label string
	// OutputDir is the run-group directory the output files are written to. Optional.
	OutputDir string
	// LaunchCommand defaults to DefaultLaunchCommand.
	LaunchCommand string
}

// Validate reports every violated invariant of the descriptor.
func (d Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Directory) == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	if len(d.BuildSteps) == 0 {
		errs = append(errs, errors.New("at least one build step is required"))
	}
	for i, step := range d.BuildSteps {
		if strings.TrimSpace(step) == "" {
			errs = append(errs, fmt.Errorf("build step %d is empty", i))
		}
	}
	if strings.TrimSpace(d.Executable) == "" {
		errs = append(errs, errors.New("executable is required"))
	}
	if d.Resources.CoreCount < 1 {
		errs = append(errs, fmt.Errorf("core count must be at least 1, got %d", d.Resources.CoreCount))
	}
	if d.Resources.MemoryMB < 1 {
		errs = append(errs, fmt.Errorf("memory must be at least 1 MB, got %d", d.Resources.MemoryMB))
	}
	if !timeoutPattern.MatchString(d.Resources.Timeout) {
		errs = append(errs, fmt.Errorf("timeout %q is not of the form HH:MM", d.Resources.Timeout))
	}
	for _, env := range d.Env {
		if !envNamePattern.MatchString(env.Name) {
			errs = append(errs, fmt.Errorf("invalid environment variable name %q", env.Name))
		}
	}
	for _, opt := range d.Options {
		if opt.Key == "" || strings.ContainsAny(opt.Key, " \t\n=") {
			errs = append(errs, fmt.Errorf("invalid scheduler option %q", opt.Key))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDescriptor, errors.Join(errs...))
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	c := d
	c.BuildSteps = append([]string(nil), d.BuildSteps...)
	c.Env = append([]EnvVar(nil), d.Env...)
	c.Modules = append([]string(nil), d.Modules...)
	c.Options = append([]Directive(nil), d.Options...)
	return c
}

// Name returns the label, or a name derived from the directory when no label is set.
func (d Descriptor) Name() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Directory
}
