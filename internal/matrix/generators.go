package matrix

import (
	"fmt"
	"iter"

	"hpcbench/internal/job"
)

// Scaling sweeps hold nx and ny fixed and pair core counts 2^0..2^(ScalingSteps-1)
// with nz = 2^(scalingMaxExp-i).
const (
	ScalingSteps  = 7
	scalingFixed  = 64
	scalingMaxExp = 10
)

// CompareTranslations is the cartesian product of sizes and variants. Sizes vary
// slowest, so runs of the same size across variants are contiguous.
func CompareTranslations(variants []Variant, sizes []string, env Envelope) iter.Seq[job.Descriptor] {
	return func(yield func(job.Descriptor) bool) {
		for _, size := range sizes {
			for _, v := range variants {
				if !yield(descriptor(v, env, size, env.CoreCount)) {
					return
				}
			}
		}
	}
}

// StrongScaling doubles the core count while halving nz, index for index.
func StrongScaling(v Variant, env Envelope) iter.Seq[job.Descriptor] {
	return scaling(v, env)
}

// WeakScaling uses the same parameter rule as StrongScaling.
//
// TODO: grow nz with the core count (nz = 2^(4+i)) once the existing weak-scaling
// results no longer need to be reproduced.
func WeakScaling(v Variant, env Envelope) iter.Seq[job.Descriptor] {
	return scaling(v, env)
}

func scaling(v Variant, env Envelope) iter.Seq[job.Descriptor] {
	cores, sizes := scalingParameters()
	return func(yield func(job.Descriptor) bool) {
		for i := range cores {
			if !yield(descriptor(v, env, sizes[i], cores[i])) {
				return
			}
		}
	}
}

// scalingParameters returns the paired core-count and size lists.
func scalingParameters() ([]int, []string) {
	cores := make([]int, 0, ScalingSteps)
	sizes := make([]string, 0, ScalingSteps)
	for i := 0; i < ScalingSteps; i++ {
		cores = append(cores, 1<<i)
		sizes = append(sizes, fmt.Sprintf("%d %d %d", scalingFixed, scalingFixed, 1<<(scalingMaxExp-i)))
	}
	return cores, sizes
}
