// Package sweepfile decodes variant and sweep definitions from HCL.
//
// A sweep file declares variant blocks (one per build of the benchmarked
// program) and sweep blocks that reference them by name:
//
//	variant "original" {
//	  directory  = "../0_original"
//	  build      = ["make"]
//	  executable = "./test_HPCCG"
//	}
//
//	sweep "compare" {
//	  kind      = "compare-translations"
//	  variants  = ["original"]
//	  sizes     = [for x in range(50, 401, 50) : format("%d %d %d", x, x, x)]
//	  cores     = 40
//	  timeout   = "60:00"
//	  memory_mb = 60000
//
//	  env "OMP_NUM_THREADS" { value = "40" }
//	  option "partition" { value = "cpu-batch" }
//	}
//
// Expressions may call range, format, join, upper and lower.
package sweepfile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"hpcbench/internal/job"
	"hpcbench/internal/matrix"
)

//go:embed default.hcl
var defaultSource []byte

// ErrUnknownSweep is returned by Lookup for a name the file does not define.
var ErrUnknownSweep = errors.New("unknown sweep")

// File is a decoded sweep file.
type File struct {
	Variants []matrix.Variant
	// Sweeps keep their declaration order.
	Sweeps []matrix.SweepSpec
}

type fileRoot struct {
	Variants []*variantBlock `hcl:"variant,block"`
	Sweeps   []*sweepBlock   `hcl:"sweep,block"`
}

type variantBlock struct {
	Name       string   `hcl:"name,label"`
	Directory  string   `hcl:"directory"`
	Build      []string `hcl:"build"`
	Executable string   `hcl:"executable"`
}

type sweepBlock struct {
	Name          string         `hcl:"name,label"`
	Kind          string         `hcl:"kind"`
	Variants      []string       `hcl:"variants"`
	Sizes         []string       `hcl:"sizes,optional"`
	Cores         int            `hcl:"cores,optional"`
	Timeout       string         `hcl:"timeout"`
	MemoryMB      int            `hcl:"memory_mb"`
	Modules       []string       `hcl:"modules,optional"`
	LaunchCommand string         `hcl:"launch_command,optional"`
	OutputDir     string         `hcl:"output_dir,optional"`
	Env           []*envBlock    `hcl:"env,block"`
	Options       []*optionBlock `hcl:"option,block"`
}

type envBlock struct {
	Name  string `hcl:"name,label"`
	Value string `hcl:"value"`
}

type optionBlock struct {
	Key   string `hcl:"key,label"`
	Value string `hcl:"value,optional"`
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"range":  stdlib.RangeFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
			"upper":  stdlib.UpperFunc,
			"lower":  stdlib.LowerFunc,
		},
	}
}

// Default returns the built-in sweeps.
func Default() (*File, error) {
	return Parse(defaultSource, "default.hcl")
}

// Load reads a sweep file from disk. An empty path loads the built-in sweeps.
func Load(path string) (*File, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep file: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is only used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse sweep file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode sweep file %s: %w", filename, diags)
	}

	f := &File{}
	byName := make(map[string]matrix.Variant, len(root.Variants))
	for _, vb := range root.Variants {
		if _, dup := byName[vb.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate variant %q", filename, vb.Name)
		}
		v := matrix.Variant{
			Name:       vb.Name,
			Directory:  vb.Directory,
			BuildSteps: vb.Build,
			Executable: vb.Executable,
		}
		byName[vb.Name] = v
		f.Variants = append(f.Variants, v)
	}

	seen := make(map[string]bool, len(root.Sweeps))
	for _, sb := range root.Sweeps {
		if seen[sb.Name] {
			return nil, fmt.Errorf("%s: duplicate sweep %q", filename, sb.Name)
		}
		seen[sb.Name] = true

		spec, err := sb.spec(byName)
		if err != nil {
			return nil, fmt.Errorf("%s: sweep %q: %w", filename, sb.Name, err)
		}
		f.Sweeps = append(f.Sweeps, spec)
	}

	return f, nil
}

func (sb *sweepBlock) spec(variants map[string]matrix.Variant) (matrix.SweepSpec, error) {
	kind, err := matrix.ParseKind(sb.Kind)
	if err != nil {
		return matrix.SweepSpec{}, err
	}

	spec := matrix.SweepSpec{
		Name:  sb.Name,
		Kind:  kind,
		Sizes: sb.Sizes,
		Envelope: matrix.Envelope{
			CoreCount:     sb.Cores,
			Timeout:       sb.Timeout,
			MemoryMB:      sb.MemoryMB,
			Modules:       sb.Modules,
			OutputDir:     sb.OutputDir,
			LaunchCommand: sb.LaunchCommand,
		},
	}
	for _, name := range sb.Variants {
		v, ok := variants[name]
		if !ok {
			return matrix.SweepSpec{}, fmt.Errorf("unknown variant %q", name)
		}
		spec.Variants = append(spec.Variants, v)
	}
	for _, e := range sb.Env {
		spec.Envelope.Env = append(spec.Envelope.Env, job.EnvVar{Name: e.Name, Value: e.Value})
	}
	for _, o := range sb.Options {
		spec.Envelope.Options = append(spec.Envelope.Options, job.Directive{Key: o.Key, Value: o.Value})
	}

	if err := spec.Validate(); err != nil {
		return matrix.SweepSpec{}, err
	}
	return spec, nil
}

// Lookup returns the sweep with the given name.
func (f *File) Lookup(name string) (matrix.SweepSpec, error) {
	for _, s := range f.Sweeps {
		if s.Name == name {
			return s, nil
		}
	}
	return matrix.SweepSpec{}, fmt.Errorf("%w %q", ErrUnknownSweep, name)
}

// Names lists the sweep names in declaration order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Sweeps))
	for _, s := range f.Sweeps {
		names = append(names, s.Name)
	}
	return names
}
