package matrix

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"

	"hpcbench/internal/job"

	"github.com/google/go-cmp/cmp"
)

func testVariants() []Variant {
	return []Variant{
		{Name: "original", Directory: "../0_original", BuildSteps: []string{"make"}, Executable: "./test_HPCCG"},
		{Name: "naive", Directory: "../1_naive", BuildSteps: []string{"cargo build --release"}, Executable: "./target/release/hpccg-rs-naive"},
		{Name: "parallel", Directory: "../6_parallel", BuildSteps: []string{"cargo build --release"}, Executable: "./target/release/hpccg-rs-parallel"},
	}
}

func testEnvelope() Envelope {
	return Envelope{
		CoreCount: 40,
		Timeout:   "60:00",
		MemoryMB:  60000,
		Env:       []job.EnvVar{{Name: "OMP_NUM_THREADS", Value: "40"}},
		Modules:   []string{"GCC/11.3.0"},
	}
}

func nz(t *testing.T, d job.Descriptor) int {
	t.Helper()
	fields := strings.Fields(d.Args)
	if len(fields) != 3 {
		t.Fatalf("expected three size fields in %q", d.Args)
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		t.Fatalf("bad nz in %q: %v", d.Args, err)
	}
	return n
}

func TestCompareTranslations_Cardinality(t *testing.T) {
	sizes := []string{"50 50 50", "100 100 100", "150 150 150", "200 200 200"}
	got := slices.Collect(CompareTranslations(testVariants(), sizes, testEnvelope()))

	if len(got) != len(testVariants())*len(sizes) {
		t.Fatalf("expected %d descriptors, got %d", len(testVariants())*len(sizes), len(got))
	}

	// Size is the outer loop: same-size runs are contiguous.
	for i, d := range got {
		wantSize := sizes[i/len(testVariants())]
		wantDir := testVariants()[i%len(testVariants())].Directory
		if d.Args != wantSize || d.Directory != wantDir {
			t.Errorf("descriptor %d = (%s, %s), want (%s, %s)", i, d.Directory, d.Args, wantDir, wantSize)
		}
		if d.Resources.CoreCount != 40 || d.Resources.Timeout != "60:00" || d.Resources.MemoryMB != 60000 {
			t.Errorf("descriptor %d did not inherit the envelope: %+v", i, d.Resources)
		}
		if err := d.Validate(); err != nil {
			t.Errorf("descriptor %d invalid: %v", i, err)
		}
	}

	if got[0].Label != "original_50x50x50_40c" {
		t.Errorf("unexpected label %q", got[0].Label)
	}
}

func TestCompareTranslations_Empty(t *testing.T) {
	if n := Count(CompareTranslations(testVariants(), nil, testEnvelope())); n != 0 {
		t.Errorf("expected no descriptors without sizes, got %d", n)
	}
	if n := Count(CompareTranslations(nil, []string{"1 1 1"}, testEnvelope())); n != 0 {
		t.Errorf("expected no descriptors without variants, got %d", n)
	}
}

func TestStrongScaling_Parameters(t *testing.T) {
	got := slices.Collect(StrongScaling(testVariants()[0], testEnvelope()))
	if len(got) != ScalingSteps {
		t.Fatalf("expected %d descriptors, got %d", ScalingSteps, len(got))
	}

	wantCores := []int{1, 2, 4, 8, 16, 32, 64}
	wantArgs := []string{"64 64 1024", "64 64 512", "64 64 256", "64 64 128", "64 64 64", "64 64 32", "64 64 16"}
	for i, d := range got {
		if d.Resources.CoreCount != wantCores[i] {
			t.Errorf("descriptor %d: cores = %d, want %d", i, d.Resources.CoreCount, wantCores[i])
		}
		if d.Args != wantArgs[i] {
			t.Errorf("descriptor %d: args = %q, want %q", i, d.Args, wantArgs[i])
		}
		if i > 0 {
			if d.Resources.CoreCount <= got[i-1].Resources.CoreCount {
				t.Errorf("core count not strictly increasing at %d", i)
			}
			if nz(t, d) >= nz(t, got[i-1]) {
				t.Errorf("nz not strictly decreasing at %d", i)
			}
		}
		// Work per core: nx*ny*nz*cores stays at 64*64*1024.
		if nz(t, d)*d.Resources.CoreCount != 1024 {
			t.Errorf("descriptor %d: nz*cores = %d, want 1024", i, nz(t, d)*d.Resources.CoreCount)
		}
	}
}

func TestWeakScaling_MatchesStrongScaling(t *testing.T) {
	v := testVariants()[1]
	strong := slices.Collect(StrongScaling(v, testEnvelope()))
	weak := slices.Collect(WeakScaling(v, testEnvelope()))

	if diff := cmp.Diff(strong, weak); diff != "" {
		t.Errorf("weak scaling diverged from strong scaling (-strong +weak):\n%s", diff)
	}
}

func TestGenerators_Restartable(t *testing.T) {
	seqs := map[string]func() []job.Descriptor{
		"compare": func() []job.Descriptor {
			return slices.Collect(CompareTranslations(testVariants(), []string{"50 50 50", "100 100 100"}, testEnvelope()))
		},
		"strong": func() []job.Descriptor { return slices.Collect(StrongScaling(testVariants()[0], testEnvelope())) },
		"weak":   func() []job.Descriptor { return slices.Collect(WeakScaling(testVariants()[0], testEnvelope())) },
	}
	for name, collect := range seqs {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(collect(), collect()); diff != "" {
				t.Errorf("second pass differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestGenerators_DoNotShareState(t *testing.T) {
	variants := testVariants()
	env := testEnvelope()

	got := slices.Collect(CompareTranslations(variants, []string{"50 50 50", "100 100 100"}, env))
	got[0].BuildSteps[0] = "rm -rf /"
	got[0].Env[0].Value = "1"
	got[0].Modules[0] = "Clang"

	if variants[0].BuildSteps[0] != "make" {
		t.Error("variant build steps were mutated through a descriptor")
	}
	if env.Env[0].Value != "40" || env.Modules[0] != "GCC/11.3.0" {
		t.Error("envelope was mutated through a descriptor")
	}
	if got[len(variants)].BuildSteps[0] != "make" {
		t.Error("descriptors share build steps")
	}
}

func TestGenerators_EarlyStop(t *testing.T) {
	n := 0
	for range StrongScaling(testVariants()[0], testEnvelope()) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("expected to stop after 3, got %d", n)
	}
}

func TestGenerate_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		spec SweepSpec
		want int
	}{
		{
			name: "compare",
			spec: SweepSpec{Name: "compare", Kind: KindCompareTranslations, Variants: testVariants(), Sizes: []string{"50 50 50", "100 100 100"}, Envelope: testEnvelope()},
			want: 6,
		},
		{
			name: "strong single variant",
			spec: SweepSpec{Name: "strong", Kind: KindStrongScaling, Variants: testVariants()[:1], Envelope: testEnvelope()},
			want: 7,
		},
		{
			name: "weak three variants",
			spec: SweepSpec{Name: "weak", Kind: KindWeakScaling, Variants: testVariants(), Envelope: testEnvelope()},
			want: 21,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := Generate(tt.spec)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if n := Count(seq); n != tt.want {
				t.Errorf("expected %d descriptors, got %d", tt.want, n)
			}
		})
	}
}

func TestGenerate_ScalingVariantsContiguous(t *testing.T) {
	seq, err := Generate(SweepSpec{Name: "strong", Kind: KindStrongScaling, Variants: testVariants(), Envelope: testEnvelope()})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	got := slices.Collect(seq)
	for i, d := range got {
		want := testVariants()[i/ScalingSteps].Directory
		if d.Directory != want {
			t.Errorf("descriptor %d from %s, want %s", i, d.Directory, want)
		}
	}
}

func TestGenerate_OutputDirPerSweep(t *testing.T) {
	env := testEnvelope()
	env.OutputDir = "results"
	seq, err := Generate(SweepSpec{Name: "strong", Kind: KindStrongScaling, Variants: testVariants()[:1], Envelope: env})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for d := range seq {
		if d.OutputDir != "results/strong" {
			t.Errorf("expected output dir results/strong, got %s", d.OutputDir)
		}
	}
}

func TestGenerate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		spec    SweepSpec
		wantMsg string
	}{
		{"unknown kind", SweepSpec{Kind: "sideways", Variants: testVariants()}, "unknown kind"},
		{"no variants", SweepSpec{Kind: KindStrongScaling}, "at least one variant"},
		{"no sizes", SweepSpec{Kind: KindCompareTranslations, Variants: testVariants(), Envelope: testEnvelope()}, "at least one size"},
		{"no cores", SweepSpec{Kind: KindCompareTranslations, Variants: testVariants(), Sizes: []string{"1 1 1"}}, "core count"},
		{"unnamed variant", SweepSpec{Kind: KindWeakScaling, Variants: []Variant{{Directory: "."}}}, "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.spec)
			if !errors.Is(err, ErrInvalidSweep) {
				t.Fatalf("expected ErrInvalidSweep, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %v", tt.wantMsg, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = (%q, %v)", k, got, err)
		}
	}
	if _, err := ParseKind("diagonal"); !errors.Is(err, ErrInvalidSweep) {
		t.Errorf("expected ErrInvalidSweep, got %v", err)
	}
}
