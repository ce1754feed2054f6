// Package main is the entry point for benchctl.
// benchctl renders, submits and collects HPCCG benchmark sweeps on a Slurm cluster.
package main

import (
	"os"

	"hpcbench/cmd/benchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
