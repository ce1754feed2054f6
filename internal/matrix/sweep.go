// Package matrix generates the job descriptors of a benchmark sweep.
//
// Every generator is a pure, finite iter.Seq: ranging over it twice yields the
// same descriptors in the same order, and each descriptor owns its slices.
package matrix

import (
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"

	"hpcbench/internal/job"
)

// ErrInvalidSweep is returned when a sweep specification cannot generate descriptors.
var ErrInvalidSweep = errors.New("invalid sweep")

// Kind selects the parameter-generation rule of a sweep.
type Kind string

const (
	KindCompareTranslations Kind = "compare-translations"
	KindStrongScaling       Kind = "strong-scaling"
	KindWeakScaling         Kind = "weak-scaling"
)

// Kinds lists the supported sweep kinds.
var Kinds = []Kind{KindCompareTranslations, KindStrongScaling, KindWeakScaling}

// ParseKind validates a sweep kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSweep, s)
}

// Variant is one build of the benchmarked program.
type Variant struct {
	Name       string
	Directory  string
	BuildSteps []string
	Executable string
}

// Envelope is the resource request and environment shared by every run of a sweep.
type Envelope struct {
	// CoreCount is only used by compare-translations; scaling sweeps set their own.
	CoreCount     int
	Timeout       string
	MemoryMB      int
	Env           []job.EnvVar
	Modules       []string
	Options       []job.Directive
	OutputDir     string
	LaunchCommand string
}

// SweepSpec is the input to Generate.
type SweepSpec struct {
	Name     string
	Kind     Kind
	Variants []Variant
	// Sizes are argument strings such as "50 50 50". Only used by compare-translations.
	Sizes    []string
	Envelope Envelope
}

// Validate checks that the sweep can generate descriptors.
func (s SweepSpec) Validate() error {
	var errs []error
	if _, err := ParseKind(string(s.Kind)); err != nil {
		errs = append(errs, fmt.Errorf("unknown kind %q", s.Kind))
	}
	if len(s.Variants) == 0 {
		errs = append(errs, errors.New("at least one variant is required"))
	}
	for i, v := range s.Variants {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("variant %d has no name", i))
		}
	}
	if s.Kind == KindCompareTranslations {
		if len(s.Sizes) == 0 {
			errs = append(errs, errors.New("at least one size is required"))
		}
		if s.Envelope.CoreCount < 1 {
			errs = append(errs, fmt.Errorf("core count must be at least 1, got %d", s.Envelope.CoreCount))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidSweep, s.Name, errors.Join(errs...))
}

// Generate dispatches on the sweep kind. Scaling sweeps over several variants
// emit each variant's runs contiguously, in variant order.
func Generate(spec SweepSpec) (iter.Seq[job.Descriptor], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	env := spec.Envelope
	if env.OutputDir != "" && spec.Name != "" {
		env.OutputDir = path.Join(env.OutputDir, spec.Name)
	}

	switch spec.Kind {
	case KindCompareTranslations:
		return CompareTranslations(spec.Variants, spec.Sizes, env), nil
	case KindStrongScaling:
		return chain(spec.Variants, env, StrongScaling), nil
	default:
		return chain(spec.Variants, env, WeakScaling), nil
	}
}

func chain(variants []Variant, env Envelope, gen func(Variant, Envelope) iter.Seq[job.Descriptor]) iter.Seq[job.Descriptor] {
	return func(yield func(job.Descriptor) bool) {
		for _, v := range variants {
			for d := range gen(v, env) {
				if !yield(d) {
					return
				}
			}
		}
	}
}

// Count drains a sequence and returns its length.
func Count(seq iter.Seq[job.Descriptor]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

// descriptor builds a fresh descriptor for one sweep point.
func descriptor(v Variant, env Envelope, args string, cores int) job.Descriptor {
	d := job.Descriptor{
		Directory:  v.Directory,
		BuildSteps: v.BuildSteps,
		Executable: v.Executable,
		Args:       args,
		Resources: job.Resources{
			CoreCount: cores,
			Timeout:   env.Timeout,
			MemoryMB:  env.MemoryMB,
		},
		Env:           env.Env,
		Modules:       env.Modules,
		Options:       env.Options,
		Label:         label(v.Name, args, cores),
		OutputDir:     env.OutputDir,
		LaunchCommand: env.LaunchCommand,
	}
	return d.Clone()
}

// label is "<variant>_<nx>x<ny>x<nz>_<cores>c".
func label(variant, args string, cores int) string {
	return fmt.Sprintf("%s_%s_%dc", variant, strings.Join(strings.Fields(args), "x"), cores)
}
